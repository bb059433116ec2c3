// Package stimulus loads the point set shown in a clustering trial.
package stimulus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"lasso-go/internal/lasso"

	"gopkg.in/yaml.v3"
)

var ErrEmpty = errors.New("stimulus has no points")

// Fetch reads the stimulus document once from source, which is either an
// http(s) URL or a local file path. YAML is accepted for .yaml/.yml sources,
// everything else is decoded as JSON.
func Fetch(ctx context.Context, source string, client *http.Client) (*lasso.Stimulus, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		data, err = fetchRemote(ctx, source, client)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stimulus %q: %w", source, err)
	}

	stim, err := Decode(data, isYAML(source))
	if err != nil {
		return nil, fmt.Errorf("failed to decode stimulus %q: %w", source, err)
	}
	return stim, nil
}

// Decode parses a `{points: [{x, y}]}` document.
func Decode(data []byte, asYAML bool) (*lasso.Stimulus, error) {
	var stim lasso.Stimulus
	var err error
	if asYAML {
		err = yaml.Unmarshal(data, &stim)
	} else {
		err = json.Unmarshal(data, &stim)
	}
	if err != nil {
		return nil, err
	}
	if len(stim.Points) == 0 {
		return nil, ErrEmpty
	}
	return &stim, nil
}

// Validate checks that every point lies on a canvas of the given size.
func Validate(stim *lasso.Stimulus, width, height int) error {
	surface := lasso.NewSurface(width, height, lasso.Point{})
	if !surface.Fits(*stim) {
		return fmt.Errorf("stimulus does not fit a %dx%d canvas", width, height)
	}
	return nil
}

func fetchRemote(ctx context.Context, url string, client *http.Client) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func isYAML(source string) bool {
	// Strip any query string before looking at the extension.
	if i := strings.IndexByte(source, '?'); i >= 0 {
		source = source[:i]
	}
	switch strings.ToLower(filepath.Ext(source)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
