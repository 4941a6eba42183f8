package docpipe

// Format identifies a document type.
type Format string

const (
	FormatDoc  Format = "doc"
	FormatDocx Format = "docx"
	FormatPDF  Format = "pdf"
	FormatTXT  Format = "txt"
	FormatHTML Format = "html"
)

// Image is one media item extracted from a document, in the order its
// placeholder marker appears in the text.
type Image struct {
	Filename string `json:"filename"`
	Data     []byte `json:"-"`
}

// Document is the result of extracting a file: prose with inline
// [[IMG_n]] markers plus the images those markers stand for.
type Document struct {
	Path   string `json:"path"`
	Format Format `json:"format"`

	// Title is the first one or two non-empty lines; empty when the file
	// opens with an image or has no text at all.
	Title string `json:"title"`
	// TitleLineCount is how many leading text lines the title consumed,
	// so the body below excludes them.
	TitleLineCount int `json:"title_line_count"`

	// Text is the body with [[IMG_n]] markers at image positions,
	// title lines removed.
	Text   string  `json:"text"`
	Images []Image `json:"images,omitempty"`

	// Quality is set for PDF extraction only.
	Quality *ExtractionQuality `json:"quality,omitempty"`
}
