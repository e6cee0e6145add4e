package edgar

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ExtractJSON extracts the JSON members of a zip archive into destDir,
// flattening any internal directory structure. Returns the extracted paths.
func ExtractJSON(zipPath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrapf(err, "edgar: open zip %s", zipPath)
	}
	defer r.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "edgar: create extract dir %s", destDir)
	}

	var out []string
	for _, member := range r.File {
		if member.FileInfo().IsDir() || !strings.HasSuffix(member.Name, ".json") {
			continue
		}
		dest := filepath.Join(destDir, filepath.Base(member.Name))
		if err := extractMember(member, dest); err != nil {
			return nil, err
		}
		out = append(out, dest)
	}

	zap.L().Info("extracted archive",
		zap.String("zip", zipPath),
		zap.Int("members", len(out)))
	return out, nil
}

func extractMember(member *zip.File, dest string) error {
	src, err := member.Open()
	if err != nil {
		return eris.Wrapf(err, "edgar: open member %s", member.Name)
	}
	defer src.Close()

	dst, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "edgar: create %s", dest)
	}
	_, err = io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	return eris.Wrapf(err, "edgar: extract %s", member.Name)
}
