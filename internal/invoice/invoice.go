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

// Package invoice extracts a structured invoice record from a self-bill
// invoice PDF. Extraction is all-or-nothing: either every field pattern
// matches and a fully normalised record is returned, or the whole PDF is
// rejected with the name of the first missing field.
package invoice

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Formats holds the two date layouts the record translates between:
// how dates are printed inside the PDF, and what the ledger's form fields
// accept. Both are configuration — the ledger's accepted format is not
// ours to hard-code.
type Formats struct {
	PDFDate    string
	LedgerDate string
}

// Invoice is one extracted, normalised invoice. All values are kept as
// strings in exactly the form the ledger form fields expect. The record is
// built by Extract and never modified afterwards.
type Invoice struct {
	RawPDF []byte

	ClientName     string
	GrossValue     string
	HourRate       string
	HoursWorked    string
	InvoiceDate    string
	InvoiceNumber  string
	NetValue       string
	PaymentDueDate string
	TimesheetID    string
	VATRate        string
	VATValue       string
}

// newInvoice builds a record from raw pattern captures, applying the
// normalisation the ledger requires. It is the single point of failure for
// partially valid input — a record that exists is a record that validated.
func newInvoice(raw []byte, fields map[string]string, f Formats) (*Invoice, error) {
	inv := &Invoice{
		RawPDF:        raw,
		ClientName:    fields[fieldClientName],
		GrossValue:    fields[fieldGrossValue],
		HourRate:      fields[fieldHourRate],
		InvoiceNumber: fields[fieldInvoiceNumber],
		NetValue:      fields[fieldNetValue],
		TimesheetID:   fields[fieldTimesheetID],
		VATValue:      fields[fieldVATValue],
	}

	hours, err := normalizeHours(fields[fieldHoursWorked])
	if err != nil {
		return nil, fmt.Errorf("normalise %s: %w", fieldHoursWorked, err)
	}
	inv.HoursWorked = hours

	rate, err := normalizeRate(fields[fieldVATRate])
	if err != nil {
		return nil, fmt.Errorf("normalise %s: %w", fieldVATRate, err)
	}
	inv.VATRate = rate

	invoiceDate, err := normalizeDate(fields[fieldInvoiceDate], f)
	if err != nil {
		return nil, fmt.Errorf("normalise %s: %w", fieldInvoiceDate, err)
	}
	inv.InvoiceDate = invoiceDate

	dueDate, err := normalizeDate(fields[fieldPaymentDueDate], f)
	if err != nil {
		return nil, fmt.Errorf("normalise %s: %w", fieldPaymentDueDate, err)
	}
	inv.PaymentDueDate = dueDate

	return inv, nil
}

// normalizeHours converts a H:MM duration into decimal hours, so "7:30"
// becomes "7.5" — the quantity the ledger's hourly rate multiplies against.
func normalizeHours(v string) (string, error) {
	h, m, ok := strings.Cut(v, ":")
	if !ok {
		return "", fmt.Errorf("duration %q is not in H:MM form", v)
	}
	hours, err := strconv.Atoi(h)
	if err != nil {
		return "", fmt.Errorf("duration %q: %w", v, err)
	}
	minutes, err := strconv.Atoi(m)
	if err != nil {
		return "", fmt.Errorf("duration %q: %w", v, err)
	}
	if minutes < 0 || minutes > 59 {
		return "", fmt.Errorf("duration %q has invalid minutes", v)
	}
	return strconv.FormatFloat(float64(hours)+float64(minutes)/60, 'f', -1, 64), nil
}

// normalizeRate coerces a decimal percentage ("20.00") to its integer form
// ("20"), which is how the ledger's VAT dropdown labels its options.
func normalizeRate(v string) (string, error) {
	f, err := strconv.ParseFloat(strings.ReplaceAll(v, ",", ""), 64)
	if err != nil {
		return "", fmt.Errorf("rate %q: %w", v, err)
	}
	return strconv.Itoa(int(f)), nil
}

// normalizeDate reformats a PDF-printed date into the ledger's layout.
func normalizeDate(v string, f Formats) (string, error) {
	t, err := time.Parse(f.PDFDate, v)
	if err != nil {
		return "", fmt.Errorf("date %q with layout %q: %w", v, f.PDFDate, err)
	}
	return t.Format(f.LedgerDate), nil
}

// noteFields is the rendering order for InternalNote. Any change to the
// invoice field set must be reflected here — the note is the ledger-side
// record of everything we extracted.
var noteFields = []struct {
	label string
	value func(*Invoice) string
}{
	{"Client Name", func(i *Invoice) string { return i.ClientName }},
	{"Gross Value", func(i *Invoice) string { return i.GrossValue }},
	{"Hour Rate", func(i *Invoice) string { return i.HourRate }},
	{"Hours Worked", func(i *Invoice) string { return i.HoursWorked }},
	{"Invoice Date", func(i *Invoice) string { return i.InvoiceDate }},
	{"Invoice Number", func(i *Invoice) string { return i.InvoiceNumber }},
	{"Net Value", func(i *Invoice) string { return i.NetValue }},
	{"Payment Due Date", func(i *Invoice) string { return i.PaymentDueDate }},
	{"Timesheet Id", func(i *Invoice) string { return i.TimesheetID }},
	{"Vat Rate", func(i *Invoice) string { return i.VATRate }},
	{"Vat Value", func(i *Invoice) string { return i.VATValue }},
}

// InternalNote renders every field as a "Label = value" line. The result
// goes verbatim into the ledger entry's free-text note as human-readable
// provenance for whoever reviews the books.
func (i *Invoice) InternalNote() string {
	var b strings.Builder
	for n, f := range noteFields {
		if n > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s = %s", f.label, f.value(i))
	}
	return b.String()
}
