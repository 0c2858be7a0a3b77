package printing

import "strings"

// DefaultVirtualPrinterKeywords match print-to-file style queues that would
// let a user save the flattened document instead of printing it.
var DefaultVirtualPrinterKeywords = []string{
	"pdf",
	"xps",
	"onenote",
	"onedrive",
	"cloud",
	"fax",
	"microsoft print to pdf",
}

// VirtualPrinterPolicy decides which printer names are virtual
type VirtualPrinterPolicy struct {
	enabled  bool
	keywords []string
}

// NewVirtualPrinterPolicy creates a policy. Keywords are matched case
// insensitively as substrings of the printer name.
func NewVirtualPrinterPolicy(enabled bool, keywords []string) VirtualPrinterPolicy {
	normalized := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			normalized = append(normalized, kw)
		}
	}
	return VirtualPrinterPolicy{enabled: enabled, keywords: normalized}
}

// Enabled reports whether virtual printers are blocked
func (p VirtualPrinterPolicy) Enabled() bool {
	return p.enabled
}

// IsVirtual reports whether name matches one of the policy keywords
func (p VirtualPrinterPolicy) IsVirtual(name PrinterName) bool {
	lower := strings.ToLower(string(name))
	for _, kw := range p.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Check returns ErrVirtualPrinter when the policy is enabled and name is virtual
func (p VirtualPrinterPolicy) Check(name PrinterName) error {
	if p.enabled && p.IsVirtual(name) {
		return NewPrintError(ErrCodeVirtualPrinter, "virtual printer not allowed: "+name.String(), nil)
	}
	return nil
}

// Filter drops virtual printers from names when the policy is enabled
func (p VirtualPrinterPolicy) Filter(names []PrinterName) []PrinterName {
	if !p.enabled {
		return names
	}
	result := make([]PrinterName, 0, len(names))
	for _, name := range names {
		if !p.IsVirtual(name) {
			result = append(result, name)
		}
	}
	return result
}
