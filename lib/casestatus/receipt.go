package casestatus

import "strings"

// service center receipt prefixes seen on employment-based filings
var formTypeByPrefix = map[string]string{
	"YSC": "I-140",
	"WAC": "I-140",
	"LIN": "I-140",
	"SRC": "I-140",
	"MSC": "I-140",
	"IOE": "I-140",
}

var caseTypeByForm = map[string]string{
	"I-140": "Immigrant Petition for Alien Worker",
	"I-485": "Application to Register Permanent Residence",
	"I-765": "Application for Employment Authorization",
	"I-131": "Application for Travel Document",
	"I-129": "Petition for Nonimmigrant Worker",
}

// FormTypeFromReceipt guesses the form type from the receipt number
// prefix. Unknown prefixes are returned as-is so they still show up in
// the notification instead of hiding behind "Unknown".
func FormTypeFromReceipt(caseNumber string) string {
	if len(caseNumber) < 3 {
		return "Unknown"
	}
	prefix := strings.ToUpper(caseNumber[:3])
	if form, ok := formTypeByPrefix[prefix]; ok {
		return form
	}
	return prefix
}

func CaseTypeDescription(formType string) string {
	if desc, ok := caseTypeByForm[formType]; ok {
		return desc
	}
	return "Unknown Case Type"
}
