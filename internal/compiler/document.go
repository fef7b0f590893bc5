package compiler

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/panelsmith/panelsmith/model"
)

var (
	esphomeHeaderLineRe = regexp.MustCompile(`(?m)^(\x{FEFF}?\s*esphome:\s*(?:#.*)?)\r?\n`)
	esphomeNameKeyRe    = regexp.MustCompile(`^  name\s*:`)
)

// Compile turns a device record and its hardware recipe text into one
// complete ESPHome YAML document. Sections assemble in a fixed order: header,
// esphome block, api, wifi, ota, the remaining recipe body, lock globals,
// scripts, fonts, images. The device-name placeholder is resolved last, in a
// single global pass, so recipes and injected user YAML may both carry it.
func (c *Compiler) Compile(ctx context.Context, device *model.DeviceProject, recipeText string) (string, error) {
	project, err := model.DecodeProject(device.Project)
	if err != nil {
		return "", model.NewBadRequestError("project document malformed: " + err.Error())
	}
	if err := project.Validate(); err != nil {
		return "", err
	}
	recipeText = strings.ReplaceAll(recipeText, "\r\n", "\n")

	assetsYAML := c.compileImages(project)
	bindingsYAML := c.compileBindings(project)
	scriptsYAML := c.compileScripts(project)
	fontsYAML, fontIDs := c.compileFonts(project)
	project = rewriteFontProps(project, fontIDs)
	pagesYAML := c.compilePages(project)
	locksYAML := c.compileLockGlobals(project)

	text := applyUserInjection(recipeText, project.Advanced)
	text = injectBindings(text, bindingsYAML)
	merged := injectPages(text, pagesYAML)

	scriptsYAML = patchSafetyStub(merged, scriptsYAML)

	esphomeBlock, rest := splitESPHomeBlock(merged)
	esphomeBlock, rest = ensureDeviceNameKey(esphomeBlock, rest)

	wifiYAML := ""
	if !hasTopLevelKey(rest, "wifi") {
		wifiYAML = defaultWifiYAML()
	}
	otaYAML := ""
	if !hasTopLevelKey(rest, "ota") {
		otaYAML = defaultOTAYAML()
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("# Generated by panelsmith v" + c.version + "\n")
	b.WriteString("# device_id: " + device.DeviceID + "\n")
	b.WriteString("# slug: " + device.Slug + "\n")
	b.WriteString("\n")
	if strings.TrimSpace(esphomeBlock) != "" {
		b.WriteString(rstrip(esphomeBlock) + "\n\n")
	}
	if key := strings.TrimSpace(device.APIKey); key != "" {
		b.WriteString("api:\n  encryption:\n    key: " + jsonQuote(key) + "\n\n")
	}
	if wifiYAML != "" {
		b.WriteString(rstrip(wifiYAML) + "\n\n")
	}
	if otaYAML != "" {
		b.WriteString(rstrip(otaYAML) + "\n\n")
	}
	b.WriteString(rest + "\n\n")
	if strings.TrimSpace(locksYAML) != "" {
		b.WriteString(rstrip(locksYAML) + "\n\n")
	}
	if strings.TrimSpace(scriptsYAML) != "" {
		b.WriteString(rstrip(scriptsYAML) + "\n\n")
	}
	if strings.TrimSpace(fontsYAML) != "" {
		b.WriteString(rstrip(fontsYAML) + "\n\n")
	}
	if strings.TrimSpace(assetsYAML) != "" {
		b.WriteString(rstrip(assetsYAML) + "\n")
	}

	slug := device.Slug
	if slug == "" {
		slug = "device"
	}
	out := strings.ReplaceAll(b.String(), DeviceNamePlaceholder, jsonQuote(slug))

	c.log.Debug("compiled device document",
		zap.String("device_id", device.DeviceID),
		zap.String("slug", device.Slug),
		zap.Int("bytes", len(out)))
	return out, nil
}

// ensureDeviceNameKey guarantees the final document names the device through
// the placeholder. Three shapes are handled: no esphome mapping anywhere
// (synthesize one), an esphome mapping the splitter could not isolate
// (inject the name line beneath its opening key in place), and a normal
// block (force the placeholder to be the first key, dropping any name the
// recipe declared).
func ensureDeviceNameKey(esphomeBlock, rest string) (string, string) {
	nameLine := "  name: " + DeviceNamePlaceholder
	switch {
	case strings.TrimSpace(esphomeBlock) == "" && !strings.Contains(rest, "esphome:"):
		esphomeBlock = "esphome:\n" + nameLine + "\n"
	case strings.TrimSpace(esphomeBlock) == "":
		if loc := esphomeHeaderLineRe.FindStringSubmatchIndex(rest); loc != nil {
			rest = rest[:loc[0]] + rest[loc[2]:loc[3]] + "\n" + nameLine + "\n" + rest[loc[1]:]
		}
	default:
		lines := strings.Split(esphomeBlock, "\n")
		kept := make([]string, 0, len(lines))
		for _, ln := range lines[1:] {
			if esphomeNameKeyRe.MatchString(ln) {
				continue
			}
			kept = append(kept, ln)
		}
		first := strings.TrimLeft(lines[0], "\ufeff \t")
		if first == "" || strings.HasPrefix(first, "esphome:") {
			first = "esphome:"
		}
		esphomeBlock = first + "\n" + nameLine + "\n" + strings.Join(kept, "\n")
		if len(kept) > 0 {
			esphomeBlock += "\n"
		}
	}
	return esphomeBlock, rest
}
