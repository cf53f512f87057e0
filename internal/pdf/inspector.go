// Package pdf implements core.PDFInspector with pdfcpu.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/JonMunkholm/thermoextract/internal/core"
	"github.com/JonMunkholm/thermoextract/internal/logging"
)

// ErrNoPages is returned for documents without a single page.
var ErrNoPages = errors.New("pdf has no pages")

// Inspector reads page count, image presence and text from PDF bytes.
type Inspector struct {
	// MaxPages bounds text extraction; zero extracts every page.
	MaxPages int
}

// NewInspector returns an inspector extracting at most maxPages pages of text.
func NewInspector(maxPages int) *Inspector {
	return &Inspector{MaxPages: maxPages}
}

// Inspect parses data with relaxed validation. Pages whose content cannot be
// read contribute no text rather than failing the document.
func (in *Inspector) Inspect(ctx context.Context, data []byte) (*core.PDFInfo, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("%PDF-")) {
		return nil, errors.New("missing %PDF header")
	}

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w", err)
	}
	if pctx.PageCount == 0 {
		return nil, ErrNoPages
	}

	info := &core.PDFInfo{
		PageCount: pctx.PageCount,
		HasImages: hasImages(pctx),
	}

	pages := pctx.PageCount
	if in.MaxPages > 0 && pages > in.MaxPages {
		pages = in.MaxPages
	}

	var text strings.Builder
	skipped := 0
	for nr := 1; nr <= pages; nr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, ok := pageText(pctx, nr)
		if !ok {
			skipped++
			continue
		}
		if page == "" {
			continue
		}
		if text.Len() > 0 {
			text.WriteString("\n\n")
		}
		fmt.Fprintf(&text, "--- Page %d ---\n", nr)
		text.WriteString(page)
	}
	info.Text = text.String()

	if skipped > 0 {
		logging.FromContext(ctx).Warn("pdf pages without readable content",
			"pages", pctx.PageCount,
			"skipped", skipped)
	}
	return info, nil
}

func pageText(pctx *model.Context, nr int) (string, bool) {
	r, err := pdfcpu.ExtractPageContent(pctx, nr)
	if err != nil || r == nil {
		return "", false
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", false
	}
	return ContentText(data), true
}

// hasImages reports whether any page draws an image XObject.
func hasImages(pctx *model.Context) bool {
	if pctx.Optimize != nil {
		for nr := 1; nr <= pctx.PageCount; nr++ {
			if len(pdfcpu.ImageObjNrs(pctx, nr)) > 0 {
				return true
			}
		}
	}
	for _, entry := range pctx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if subtype, found := sd.Find("Subtype"); found {
			if name, isName := subtype.(types.Name); isName && name == "Image" {
				return true
			}
		}
	}
	return false
}

var _ core.PDFInspector = (*Inspector)(nil)
