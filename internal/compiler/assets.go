package compiler

import (
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/panelsmith/panelsmith/model"
)

const assetPrefix = "asset:"

type fontRef struct {
	File string
	Size int
}

// compileImages renders the image block for every widget that references an
// uploaded asset through its src property. Entries are keyed by their
// generated id, so two filenames that sanitize identically collapse into one.
func (c *Compiler) compileImages(p *model.Project) string {
	byID := make(map[string]string)
	for _, pg := range p.Pages {
		for _, w := range pg.Widgets {
			if w.Type != "image" && w.Type != "image_button" {
				continue
			}
			src, ok := w.Props["src"].(string)
			if !ok {
				continue
			}
			desc := strings.TrimSpace(src)
			if !strings.HasPrefix(desc, assetPrefix) {
				continue
			}
			fn := strings.TrimSpace(desc[len(assetPrefix):])
			if fn == "" {
				continue
			}
			byID["asset_"+SafeID(fn)] = fn
		}
	}
	if len(byID) == 0 {
		return ""
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	b.WriteString("image:\n")
	for _, id := range ids {
		b.WriteString("  - file: " + c.assetsDir + "/" + byID[id] + "\n")
		b.WriteString("    id: " + id + "\n")
	}
	return b.String()
}

// compileFonts renders the font block for every asset font descriptor used by
// a widget, and returns the descriptor to font id mapping used to rewrite
// widget properties before page emission. Descriptors are "asset:<file>:<pt>";
// malformed ones are skipped. Mapping keys are the canonical descriptor form,
// so only exact descriptor spellings get rewritten.
func (c *Compiler) compileFonts(p *model.Project) (string, map[string]string) {
	refSet := make(map[fontRef]struct{})
	for _, pg := range p.Pages {
		for _, w := range pg.Widgets {
			raw, ok := w.Props["font"].(string)
			if !ok {
				continue
			}
			desc := strings.TrimSpace(raw)
			if !strings.HasPrefix(desc, assetPrefix) {
				continue
			}
			ref, ok := parseFontDescriptor(desc)
			if !ok {
				c.log.Warn("font descriptor unusable, skipping",
					zap.String("widget_id", w.ID),
					zap.String("font", desc))
				continue
			}
			refSet[ref] = struct{}{}
		}
	}
	if len(refSet) == 0 {
		return "", nil
	}

	refs := make([]fontRef, 0, len(refSet))
	for ref := range refSet {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].File != refs[j].File {
			return refs[i].File < refs[j].File
		}
		return refs[i].Size < refs[j].Size
	})

	rewrite := make(map[string]string, len(refs))
	var b strings.Builder
	b.WriteString("font:\n")
	for i, ref := range refs {
		fid := "font_" + nonIdentRunRe.ReplaceAllString(fileStem(ref.File), "_") +
			"_" + strconv.Itoa(ref.Size) + "_" + strconv.Itoa(i+1)
		rewrite[assetPrefix+ref.File+":"+strconv.Itoa(ref.Size)] = fid
		b.WriteString("  - file: " + c.assetsDir + "/" + ref.File + "\n")
		b.WriteString("    id: " + fid + "\n")
		b.WriteString("    size: " + strconv.Itoa(ref.Size) + "\n")
	}
	return b.String(), rewrite
}

func parseFontDescriptor(desc string) (fontRef, bool) {
	rest := desc[len(assetPrefix):]
	cut := strings.LastIndex(rest, ":")
	if cut < 0 {
		return fontRef{}, false
	}
	file := strings.TrimSpace(rest[:cut])
	if file == "" {
		return fontRef{}, false
	}
	size, err := strconv.Atoi(strings.TrimSpace(rest[cut+1:]))
	if err != nil || size <= 0 {
		return fontRef{}, false
	}
	return fontRef{File: file, Size: size}, true
}

// fileStem returns the final path element without its extension. A leading
// dot does not count as an extension separator.
func fileStem(file string) string {
	base := file
	if slash := strings.LastIndexByte(base, '/'); slash >= 0 {
		base = base[slash+1:]
	}
	if dot := strings.LastIndexByte(base, '.'); dot > 0 {
		base = base[:dot]
	}
	return base
}

// rewriteFontProps returns a copy of the project whose asset font descriptors
// have been replaced with their generated font ids. The input project is left
// untouched.
func rewriteFontProps(p *model.Project, rewrite map[string]string) *model.Project {
	if len(rewrite) == 0 {
		return p
	}
	cp := p.Clone()
	for i := range cp.Pages {
		for j := range cp.Pages[i].Widgets {
			w := &cp.Pages[i].Widgets[j]
			raw, ok := w.Props["font"].(string)
			if !ok {
				continue
			}
			if fid, ok := rewrite[strings.TrimSpace(raw)]; ok {
				w.Props["font"] = fid
			}
		}
	}
	return cp
}
