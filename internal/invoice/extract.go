// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package invoice

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/ledongthuc/pdf"
)

// Field names, used in pattern rules, normalisation errors and logs.
const (
	fieldClientName     = "client_name"
	fieldGrossValue     = "gross_value"
	fieldHourRate       = "hour_rate"
	fieldHoursWorked    = "hours_worked"
	fieldInvoiceDate    = "invoice_date"
	fieldInvoiceNumber  = "invoice_number"
	fieldNetValue       = "net_value"
	fieldPaymentDueDate = "payment_due_date"
	fieldTimesheetID    = "timesheet_id"
	fieldVATRate        = "vat_rate"
	fieldVATValue       = "vat_value"
)

const datePattern = `[0-3]?[0-9]/[0-3]?[0-9]/(?:[0-9]{2})?[0-9]{2}`

// patternRules maps each invoice field to the regex that locates it in the
// extracted PDF text. The rules are specific to the agency's self-bill
// invoice template; a scanned image or an altered template fails extraction
// outright rather than producing a partial record. The (?s) flag lets `.`
// cross the line breaks the PDF text extractor inserts between columns.
var patternRules = []struct {
	name string
	re   *regexp.Regexp
}{
	{fieldClientName, regexp.MustCompile(`(?s)SELF BILL INVOICE\n\n([A-Za-z ]+)`)},
	{fieldGrossValue, regexp.MustCompile(`(?s)Gross.(\d{0,3}[,]?\d{0,6}.\d{2})`)},
	{fieldHourRate, regexp.MustCompile(`(?s)STD..(\d+.\d{2})..SELF BILL INVOICE Number`)},
	{fieldHoursWorked, regexp.MustCompile(`(?s).(\d{0,2}:\d{2}).hrs`)},
	{fieldInvoiceDate, regexp.MustCompile(`(?s)Date:.(` + datePattern + `)`)},
	{fieldInvoiceNumber, regexp.MustCompile(`(?s)SELF BILL INVOICE Number: (\w+-\w+)`)},
	{fieldNetValue, regexp.MustCompile(`(?s)Net.(\d{0,3}[,]?\d{0,6}.\d{2})`)},
	{fieldPaymentDueDate, regexp.MustCompile(`(?s)Amount is due by (` + datePattern + `)`)},
	{fieldTimesheetID, regexp.MustCompile(`(?s)Sheet:.(TS_\d+)`)},
	{fieldVATRate, regexp.MustCompile(`(?s)Rate.(\d{0,3}[,]?\d{0,6}.\d{2})`)},
	{fieldVATValue, regexp.MustCompile(`(?s)VAT.(\d{0,3}[,]?\d{0,6}.\d{2})`)},
}

// Extract converts raw PDF bytes into a validated Invoice. Every pattern
// rule must match at least once; the first capture wins. A PDF missing even
// one field yields an error naming that field and no record at all.
func Extract(raw []byte, f Formats) (*Invoice, error) {
	text, err := pdfText(raw)
	if err != nil {
		return nil, fmt.Errorf("extract PDF text: %w", err)
	}
	return parseText(raw, text, f)
}

// parseText applies the pattern rules to already-extracted text. Split out
// from Extract so the rules can be exercised without fabricating PDFs.
func parseText(raw []byte, text string, f Formats) (*Invoice, error) {
	fields := make(map[string]string, len(patternRules))
	for _, rule := range patternRules {
		m := rule.re.FindStringSubmatch(text)
		if m == nil {
			return nil, fmt.Errorf("extract %s: pattern found no match", rule.name)
		}
		fields[rule.name] = m[1]
	}
	return newInvoice(raw, fields, f)
}

// pdfText extracts the plain text content of a PDF held in memory.
func pdfText(raw []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read PDF text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("read PDF text: %w", err)
	}
	return buf.String(), nil
}
