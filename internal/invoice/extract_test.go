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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleText mimics the text layer of the agency's self-bill invoice
// template as the PDF extractor flattens it.
const sampleText = `SELF BILL INVOICE

Acme Consulting

Date: 08/03/2022

Sheet: TS_998877  37:30 hrs
STD  30.00  SELF BILL INVOICE Number: SB-1042

Net 1,125.00
Rate 20.00
VAT 225.00
Gross 1,350.00

Amount is due by 07/04/2022
`

func TestParseTextExtractsAllFields(t *testing.T) {
	raw := []byte("%PDF-stub")

	inv, err := parseText(raw, sampleText, testFormats)
	require.NoError(t, err)

	assert.Equal(t, raw, inv.RawPDF)
	assert.Equal(t, "Acme Consulting", inv.ClientName)
	assert.Equal(t, "1,350.00", inv.GrossValue)
	assert.Equal(t, "30.00", inv.HourRate)
	assert.Equal(t, "37.5", inv.HoursWorked, "37:30 normalises to decimal hours")
	assert.Equal(t, "08-03-2022", inv.InvoiceDate, "reformatted into the ledger layout")
	assert.Equal(t, "SB-1042", inv.InvoiceNumber)
	assert.Equal(t, "1,125.00", inv.NetValue)
	assert.Equal(t, "07-04-2022", inv.PaymentDueDate)
	assert.Equal(t, "TS_998877", inv.TimesheetID)
	assert.Equal(t, "20", inv.VATRate, "VAT rate coerced to integer percent")
	assert.Equal(t, "225.00", inv.VATValue)
}

func TestParseTextIsAllOrNothing(t *testing.T) {
	// Drop the due-date line: extraction must fail entirely and name the
	// missing field, not return a record with ten of eleven fields.
	mutilated := strings.ReplaceAll(sampleText, "Amount is due by 07/04/2022", "")

	inv, err := parseText([]byte("%PDF-stub"), mutilated, testFormats)
	require.Error(t, err)
	assert.Nil(t, inv)
	assert.Contains(t, err.Error(), "payment_due_date")
}

func TestParseTextRejectsUnrelatedDocuments(t *testing.T) {
	inv, err := parseText([]byte("%PDF-stub"), "Dear customer, your parcel has shipped.", testFormats)
	require.Error(t, err)
	assert.Nil(t, inv)
}

func TestExtractRejectsNonPDFBytes(t *testing.T) {
	inv, err := Extract([]byte("this is not a pdf"), testFormats)
	require.Error(t, err)
	assert.Nil(t, inv)
}
