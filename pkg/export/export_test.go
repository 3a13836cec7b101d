package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sampleDataset() Dataset {
	return Dataset{
		Title:   "Admissions",
		Headers: []string{"id", "name"},
		Rows: []map[string]string{
			{"id": "A1", "name": "Asha Rao"},
			{"id": "A2", "name": "Vikram, Jr"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.Equal(t, "id,name\nA1,Asha Rao\nA2,\"Vikram, Jr\"\n", string(out))
}

func TestXLSXExporterRender(t *testing.T) {
	out, err := NewXLSXExporter().Render(sampleDataset())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	rows, err := f.GetRows(xlsxSheet)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"id", "name"}, {"A1", "Asha Rao"}, {"A2", "Vikram, Jr"}}, rows)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(sampleDataset())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))

	invoice, err := NewPDFExporter().RenderInvoice(Invoice{
		Number:    "INV-1",
		StudentID: "STU-AR-1",
		Lines:     []InvoiceLine{{Label: "I1", Due: "2024-01-01", Status: "Paid", Amount: "9000"}},
		Totals:    []InvoiceLine{{Label: "Pending", Amount: "0"}},
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(invoice, []byte("%PDF")))
}

func TestForFormat(t *testing.T) {
	r, err := ForFormat("")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", r.ContentType())

	_, err = ForFormat("docx")
	assert.Error(t, err)

	_, err = NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestCSVExporterNeutralisesFormulaCells(t *testing.T) {
	data := Dataset{
		Headers: []string{"name", "phone", "notes"},
		Rows: []map[string]string{
			{"name": "=HYPERLINK(\"http://x\")", "phone": "+91 9845000000", "notes": "-cmd"},
			{"name": "@SUM(A1)", "phone": "-3", "notes": "plain"},
		},
	}
	out, err := NewCSVExporter().Render(data)
	require.NoError(t, err)
	assert.Equal(t, "name,phone,notes\n\"'=HYPERLINK(\"\"http://x\"\")\",+91 9845000000,'-cmd\n'@SUM(A1),-3,plain\n", string(out))
}
