package docpipe

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// convertDoc turns a legacy .doc file into .docx with LibreOffice in
// headless mode. The caller owns (and should remove) the returned file.
func (p *Pipeline) convertDoc(ctx context.Context, docPath string) (string, error) {
	outDir, err := os.MkdirTemp(p.cfg.TempDir, "docpipe-convert-")
	if err != nil {
		return "", fmt.Errorf("temp dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.ConvertTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.cfg.ConverterPath,
		"--headless", "--convert-to", "docx", "--outdir", outDir, docPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		os.RemoveAll(outDir)
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("doc conversion timed out after %s", p.cfg.ConvertTimeout)
		}
		return "", fmt.Errorf("doc conversion: %w: %s", err, strings.TrimSpace(string(out)))
	}

	stem := strings.TrimSuffix(filepath.Base(docPath), filepath.Ext(docPath))
	converted := filepath.Join(outDir, stem+".docx")
	if _, err := os.Stat(converted); err != nil {
		os.RemoveAll(outDir)
		return "", fmt.Errorf("converted file missing: %w", err)
	}

	p.logger.Debug("converted legacy document", "from", docPath, "to", converted)
	return converted, nil
}

// ConverterAvailable reports whether the configured LibreOffice binary can
// be invoked. Checked once at startup so .doc submissions fail fast.
func (p *Pipeline) ConverterAvailable(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, p.cfg.ConverterPath, "--version")
	return cmd.Run() == nil
}
