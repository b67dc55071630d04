// Package catalogue defines the test emails mailprobe submits to an analysis endpoint
package catalogue

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Category classifies a test case on the legitimacy spectrum
type Category string

const (
	CategoryBenign            Category = "benign"
	CategoryNewsletter        Category = "newsletter"
	CategoryPhishing          Category = "phishing"
	CategoryMalware           Category = "malware"
	CategorySocialEngineering Category = "social-engineering"
)

// Categories returns every known category in display order
func Categories() []Category {
	return []Category{
		CategoryBenign,
		CategoryNewsletter,
		CategoryPhishing,
		CategoryMalware,
		CategorySocialEngineering,
	}
}

// Valid reports whether c is one of the known categories
func (c Category) Valid() bool {
	switch c {
	case CategoryBenign, CategoryNewsletter, CategoryPhishing, CategoryMalware, CategorySocialEngineering:
		return true
	}
	return false
}

// TestCase is one labeled email scenario. Every field is transmitted
// verbatim: the threat cases carry spoofed-looking senders and simulated
// lure content on purpose, and nothing may sanitize them in flight.
type TestCase struct {
	Name     string   `toml:"name"`
	Category Category `toml:"category"`
	From     string   `toml:"from"`
	To       string   `toml:"to"`
	Subject  string   `toml:"subject"`
	Body     string   `toml:"body"`
}

// Builtin returns the default catalogue: five cases spanning the legitimacy
// spectrum from routine business mail to a social engineering lure
func Builtin() []TestCase {
	return []TestCase{
		{
			Name:     "Legitimate Business Email",
			Category: CategoryBenign,
			From:     "ceo@company.com",
			To:       "team@company.com",
			Subject:  "Q4 Strategy Meeting",
			Body:     "Team, please join us for the Q4 strategy meeting on Friday at 2 PM.",
		},
		{
			Name:     "Newsletter Email",
			Category: CategoryNewsletter,
			From:     "newsletter@company.com",
			To:       "subscriber@example.com",
			Subject:  "Weekly Newsletter - AI Security Updates",
			Body:     "Welcome to our weekly newsletter featuring the latest in AI security research.",
		},
		{
			Name:     "Suspicious Phishing Email",
			Category: CategoryPhishing,
			From:     "security@bank-fake.com",
			To:       "customer@example.com",
			Subject:  "URGENT: Account Security Alert",
			Body:     "Your account will be suspended in 24 hours unless you verify your credentials immediately. Click here: http://fake-bank-security.com/login",
		},
		{
			Name:     "Malware Delivery Attempt",
			Category: CategoryMalware,
			From:     "admin@suspicious-domain.ru",
			To:       "victim@company.com",
			Subject:  "Invoice Attached - Please Review",
			Body:     "Please find attached invoice. Download and execute the file to view: http://malware-site.com/invoice.exe",
		},
		{
			Name:     "Social Engineering Attempt",
			Category: CategorySocialEngineering,
			From:     "it-support@company-fake.com",
			To:       "employee@company.com",
			Subject:  "IT Security Update Required",
			Body:     "Your password expires today. Please update it immediately by clicking: http://fake-company-portal.com/update-password",
		},
	}
}

// catalogueFile is the on-disk TOML layout: a [[case]] table per test case
type catalogueFile struct {
	Cases []TestCase `toml:"case"`
}

// Load reads a catalogue from a TOML file
func Load(path string) ([]TestCase, error) {
	var cf catalogueFile
	if _, err := toml.DecodeFile(path, &cf); err != nil {
		return nil, fmt.Errorf("failed to parse catalogue file %s: %w", path, err)
	}

	if len(cf.Cases) == 0 {
		return nil, fmt.Errorf("catalogue file %s defines no cases", path)
	}

	return cf.Cases, nil
}

// Save writes a catalogue to a TOML file, creating or truncating it
func Save(path string, cases []TestCase) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create catalogue file: %w", err)
	}

	if err := toml.NewEncoder(f).Encode(catalogueFile{Cases: cases}); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode catalogue: %w", err)
	}

	return f.Close()
}
