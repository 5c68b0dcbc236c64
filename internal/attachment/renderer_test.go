package attachment

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"rfp-mail-ingest/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDownloader struct {
	files map[string][]byte
	err   error
}

func (f *fakeDownloader) GetAttachment(_ context.Context, _, attachmentID string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.files[attachmentID]
	if !ok {
		return nil, errors.New("no such attachment")
	}
	return data, nil
}

func buildDOCX(t *testing.T, paragraphs ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	ct, err := zw.Create("[Content_Types].xml")
	require.NoError(t, err)
	_, err = ct.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">` +
		`<Default Extension="xml" ContentType="application/xml"/>` +
		`<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/></Types>`))
	require.NoError(t, err)

	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)

	doc := `<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`
	for _, p := range paragraphs {
		doc += `<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`
	}
	doc += `</w:body></w:document>`
	_, err = w.Write([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// buildPDF writes a minimal PDF with one Helvetica text line per page
func buildPDF(t *testing.T, pages ...string) []byte {
	t.Helper()
	fontID := 3 + 2*len(pages)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"",
	}
	var kids []string
	for i, text := range pages {
		pageID := 3 + 2*i
		content := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		kids = append(kids, fmt.Sprintf("%d 0 R", pageID))
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 %d 0 R >> >> /Contents %d 0 R >>", fontID, pageID+1),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}
	objects[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages))
	objects = append(objects, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func renderOne(t *testing.T, r *Renderer, src Downloader, desc models.AttachmentDescriptor) string {
	t.Helper()
	var got string
	err := r.With(context.Background(), src, desc, func(h *Handle) error {
		got = r.Render(h)
		return nil
	})
	require.NoError(t, err)
	return got
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary attachment files must be released")
}

func TestKind(t *testing.T) {
	tests := []struct {
		mime, name string
		want       FileKind
	}{
		{"application/pdf", "quote", KindPDF},
		{"application/octet-stream", "Quote.PDF", KindPDF},
		{mimeDOCX, "terms", KindDOCX},
		{"", "terms.docx", KindDOCX},
		{"image/png", "logo.png", KindImage},
		{"text/csv", "prices.csv", KindOther},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Kind(tt.mime, tt.name), "%s %s", tt.mime, tt.name)
	}
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "my_quote__v2_.pdf", SafeName("my quote (v2).pdf"))
	assert.Equal(t, "attachment", SafeName(""))
	assert.Equal(t, ".._.._etc_passwd", SafeName("../../etc/passwd"))
}

func TestRender(t *testing.T) {
	dir := t.TempDir()
	r := NewRenderer(dir, 0)
	src := &fakeDownloader{files: map[string][]byte{
		"docx":    buildDOCX(t, "Unit price: 100", "Delivery: 30 days"),
		"empty":   buildDOCX(t),
		"badpdf":  []byte("%PDF-1.4 this is not really a pdf"),
		"baddocx": []byte("not a zip"),
		"img":     {0x89, 'P', 'N', 'G'},
		"csv":     []byte("a,b"),
	}}

	tests := []struct {
		name string
		desc models.AttachmentDescriptor
		want string
	}{
		{
			name: "Empty DOCX",
			desc: models.AttachmentDescriptor{AttachmentID: "empty", Filename: "empty.docx", MimeType: mimeDOCX},
			want: placeholderEmptyDOCX,
		},
		{
			name: "Corrupted PDF",
			desc: models.AttachmentDescriptor{AttachmentID: "badpdf", Filename: "quote.pdf", MimeType: mimePDF},
			want: placeholderError,
		},
		{
			name: "Corrupted DOCX",
			desc: models.AttachmentDescriptor{AttachmentID: "baddocx", Filename: "terms.docx", MimeType: mimeDOCX},
			want: placeholderError,
		},
		{
			name: "Image",
			desc: models.AttachmentDescriptor{AttachmentID: "img", Filename: "logo.png", MimeType: "image/png"},
			want: "[Image attachment: logo.png]",
		},
		{
			name: "Unknown type",
			desc: models.AttachmentDescriptor{AttachmentID: "csv", Filename: "prices.csv", MimeType: "text/csv"},
			want: "[Unsupported type: text/csv]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			err := r.With(context.Background(), src, tt.desc, func(h *Handle) error {
				got = r.Render(h)
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assertDirEmpty(t, dir)
}

func TestRender_PDFPagesInOrder(t *testing.T) {
	dir := t.TempDir()
	r := NewRenderer(dir, 0)
	src := &fakeDownloader{files: map[string][]byte{
		"quote": buildPDF(t, "Unit price 120 USD", "Delivery within 14 days", "Warranty 2 years"),
	}}

	got := renderOne(t, r, src, models.AttachmentDescriptor{AttachmentID: "quote", Filename: "quote.pdf", MimeType: mimePDF})

	first := strings.Index(got, "Unit price 120 USD")
	second := strings.Index(got, "Delivery within 14 days")
	third := strings.Index(got, "Warranty 2 years")
	require.True(t, first >= 0 && second >= 0 && third >= 0, "missing page text in %q", got)
	assert.Less(t, first, second)
	assert.Less(t, second, third)
	assertDirEmpty(t, dir)
}

func TestRender_DOCXText(t *testing.T) {
	dir := t.TempDir()
	r := NewRenderer(dir, 0)
	src := &fakeDownloader{files: map[string][]byte{
		"docx": buildDOCX(t, "Unit price: 100", "Delivery: 30 days"),
	}}

	got := renderOne(t, r, src, models.AttachmentDescriptor{AttachmentID: "docx", Filename: "terms.docx", MimeType: mimeDOCX})

	price := strings.Index(got, "Unit price: 100")
	delivery := strings.Index(got, "Delivery: 30 days")
	require.True(t, price >= 0 && delivery >= 0, "missing paragraph text in %q", got)
	assert.Less(t, price, delivery)
	assertDirEmpty(t, dir)
}

func TestWith_ReleasesOnError(t *testing.T) {
	dir := t.TempDir()
	r := NewRenderer(dir, 0)
	src := &fakeDownloader{files: map[string][]byte{"a": []byte("x")}}
	boom := errors.New("boom")

	var path string
	err := r.With(context.Background(), src, models.AttachmentDescriptor{AttachmentID: "a", Filename: "a.bin"}, func(h *Handle) error {
		path = h.Path
		_, statErr := os.Stat(h.Path)
		require.NoError(t, statErr)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
	assertDirEmpty(t, dir)
}

func TestWith_ReleasesOnPanic(t *testing.T) {
	dir := t.TempDir()
	r := NewRenderer(dir, 0)
	src := &fakeDownloader{files: map[string][]byte{"a": []byte("x")}}

	assert.Panics(t, func() {
		_ = r.With(context.Background(), src, models.AttachmentDescriptor{AttachmentID: "a", Filename: "a.bin"}, func(*Handle) error {
			panic("parser exploded")
		})
	})
	assertDirEmpty(t, dir)
}

func TestRelease_Idempotent(t *testing.T) {
	dir := t.TempDir()
	r := NewRenderer(dir, 0)
	h, err := r.Acquire(context.Background(), &fakeDownloader{files: map[string][]byte{"a": []byte("x")}},
		models.AttachmentDescriptor{AttachmentID: "a", Filename: "a.bin"})
	require.NoError(t, err)

	r.Release(h)
	r.Release(h)
	r.Release(nil)
	assertDirEmpty(t, dir)
}

func TestRenderAll(t *testing.T) {
	dir := t.TempDir()
	r := NewRenderer(dir, 5)
	src := &fakeDownloader{files: map[string][]byte{
		"img": []byte("png"),
	}}

	got := r.RenderAll(context.Background(), src, []models.AttachmentDescriptor{
		{MessageID: "m", AttachmentID: "img", Filename: "logo.png", MimeType: "image/png", Size: 3},
		{MessageID: "m", AttachmentID: "missing", Filename: "gone.pdf", MimeType: mimePDF, Size: 3},
		{MessageID: "m", AttachmentID: "big", Filename: "huge.pdf", MimeType: mimePDF, Size: 50},
	})

	assert.Equal(t,
		"\n\n--- Attachment: logo.png ---\n[Image attachment: logo.png]"+
			"\n\n--- Attachment: huge.pdf ---\n[Attachment too large: huge.pdf]",
		got)
	assertDirEmpty(t, dir)
}
