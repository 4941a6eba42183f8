package docpipe

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"
)

// extractDocx parses a .docx archive. Paragraph text becomes body lines;
// a paragraph containing an image run becomes one [[IMG_n]] marker line
// and contributes the referenced image bytes, in appearance order. Table
// rows are flattened to "cell | cell" lines.
func extractDocx(docxPath string) (*Document, error) {
	r, err := zip.OpenReader(docxPath)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	rels, err := docxImageRels(&r.Reader)
	if err != nil {
		return nil, err
	}

	docFile := zipFile(&r.Reader, "word/document.xml")
	if docFile == nil {
		return nil, fmt.Errorf("word/document.xml not found in archive")
	}
	rc, err := docFile.Open()
	if err != nil {
		return nil, fmt.Errorf("open document.xml: %w", err)
	}
	defer rc.Close()

	lines, imageRefs, err := walkDocumentXML(rc)
	if err != nil {
		return nil, err
	}

	images := make([]Image, 0, len(imageRefs))
	for i, relID := range imageRefs {
		target, ok := rels[relID]
		if !ok {
			return nil, fmt.Errorf("image relationship %q not found", relID)
		}
		data, err := readZipFile(&r.Reader, target)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", target, err)
		}
		ext := strings.TrimPrefix(strings.ToLower(path.Ext(target)), ".")
		if ext == "jpeg" {
			ext = "jpg"
		}
		images = append(images, Image{
			Filename: fmt.Sprintf("image_%d.%s", i+1, ext),
			Data:     data,
		})
	}

	title, titleLines := splitTitle(lines)
	body := stripTitleLines(lines, titleLines)

	return &Document{
		Title:          title,
		TitleLineCount: titleLines,
		Text:           strings.Join(body, "\n"),
		Images:         images,
	}, nil
}

// walkDocumentXML streams word/document.xml and returns the ordered body
// lines plus relationship ids of images, one per image-bearing paragraph.
func walkDocumentXML(rc io.Reader) (lines []string, imageRefs []string, err error) {
	decoder := xml.NewDecoder(rc)

	var (
		paragraph  strings.Builder
		rowCells   []string
		cell       strings.Builder
		inCell     bool
		imageIndex int
		paraImage  string
	)

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("parse document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				if !inCell {
					paragraph.Reset()
					paraImage = ""
				}
			case "tr":
				rowCells = rowCells[:0]
			case "tc":
				inCell = true
				cell.Reset()
			case "blip":
				// One marker per paragraph, keyed by the first image run.
				if paraImage == "" && !inCell {
					for _, attr := range t.Attr {
						if attr.Name.Local == "embed" {
							paraImage = attr.Value
						}
					}
				}
			}

		case xml.CharData:
			if inCell {
				cell.Write(t)
			} else {
				paragraph.Write(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if inCell {
					continue
				}
				if paraImage != "" {
					imageIndex++
					lines = append(lines, fmt.Sprintf("[[IMG_%d]]", imageIndex))
					imageRefs = append(imageRefs, paraImage)
					continue
				}
				if text := strings.TrimSpace(paragraph.String()); text != "" {
					lines = append(lines, text)
				}
			case "tc":
				inCell = false
				rowCells = append(rowCells, strings.TrimSpace(cell.String()))
			case "tr":
				row := strings.TrimSpace(strings.Join(rowCells, " | "))
				if strings.Trim(row, " |") != "" {
					lines = append(lines, row)
				}
			}
		}
	}
	return lines, imageRefs, nil
}

type relationships struct {
	Rels []struct {
		ID     string `xml:"Id,attr"`
		Type   string `xml:"Type,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// docxImageRels maps relationship ids to zip paths of image parts.
func docxImageRels(zr *zip.Reader) (map[string]string, error) {
	f := zipFile(zr, "word/_rels/document.xml.rels")
	if f == nil {
		return map[string]string{}, nil
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open rels: %w", err)
	}
	defer rc.Close()

	var rels relationships
	if err := xml.NewDecoder(rc).Decode(&rels); err != nil {
		return nil, fmt.Errorf("parse rels: %w", err)
	}

	out := make(map[string]string)
	for _, rel := range rels.Rels {
		if !strings.HasSuffix(rel.Type, "/image") {
			continue
		}
		out[rel.ID] = path.Clean("word/" + rel.Target)
	}
	return out, nil
}

func zipFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func readZipFile(zr *zip.Reader, name string) ([]byte, error) {
	f := zipFile(zr, name)
	if f == nil {
		return nil, fmt.Errorf("%s not found in archive", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
