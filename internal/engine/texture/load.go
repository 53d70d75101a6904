package texture

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	_ "image/png"

	"go.uber.org/zap"

	"github.com/Faultbox/frostgard/internal/logger"
)

// LoadManifest registers every texture path listed in the manifest file the
// extractor writes next to the assets, one path per line. Blank lines and
// lines starting with '#' are skipped. Returns how many paths were added.
func (r *Registry) LoadManifest(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open texture manifest: %w", err)
	}
	defer f.Close()

	added := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		r.Register(line)
		added++
	}
	if err := scanner.Err(); err != nil {
		return added, fmt.Errorf("read texture manifest: %w", err)
	}
	logger.Log.Info("texture manifest loaded",
		zap.String("path", path),
		zap.Int("textures", added))
	return added, nil
}

// LoadImage reads and decodes a texture file. TGA goes through the local
// decoder, everything else through the registered stdlib decoders.
func LoadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".tga") {
		img, err := DecodeTGA(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return img, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}
