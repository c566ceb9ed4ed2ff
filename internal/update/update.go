// Package update checks GitHub releases for a newer prodsensor-action
// build and can replace the running binary in place. CI normally pins a
// version in the generated workflow; self-update exists for local
// installs.
package update

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultReleasesURL is the GitHub API endpoint for the latest release.
	DefaultReleasesURL = "https://api.github.com/repos/prodsensor/action/releases/latest"

	binaryName    = "prodsensor-action"
	cacheFileName = "update_check.json"
	cacheWindow   = time.Hour
)

// Release is the subset of the GitHub release payload we need.
type Release struct {
	TagName string  `json:"tag_name"`
	Assets  []Asset `json:"assets"`
}

// Asset is one downloadable file attached to a release.
type Asset struct {
	Name               string `json:"name"`
	Size               int64  `json:"size"`
	BrowserDownloadURL string `json:"browser_download_url"`
}

// Info describes an available update.
type Info struct {
	CurrentVersion string
	LatestVersion  string
	AssetName      string
	DownloadURL    string
	Checksum       string
	Size           int64
}

// Checker performs release lookups. Zero fields fall back to the real
// GitHub API and the user cache directory.
type Checker struct {
	ReleasesURL string
	CacheDir    string
	UserAgent   string
	HTTPClient  *http.Client
}

func (c *Checker) releasesURL() string {
	if c.ReleasesURL != "" {
		return c.ReleasesURL
	}
	return DefaultReleasesURL
}

func (c *Checker) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (c *Checker) cacheDir() string {
	if c.CacheDir != "" {
		return c.CacheDir
	}
	base, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, binaryName)
}

// Check returns update info when a release newer than currentVersion
// exists, nil when up to date. Results are cached for an hour so the
// version command can probe cheaply.
func (c *Checker) Check(ctx context.Context, currentVersion string, force bool) (*Info, error) {
	if !force {
		if tag, ok := c.cachedTag(); ok && !isNewer(tag, currentVersion) {
			return nil, nil
		}
	}

	release, err := c.latestRelease(ctx)
	if err != nil {
		return nil, fmt.Errorf("check for updates: %w", err)
	}
	c.saveCachedTag(release.TagName)

	if !isNewer(release.TagName, currentVersion) {
		return nil, nil
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	assetName := fmt.Sprintf("%s_%s_%s_%s.tar.gz", binaryName, latest, runtime.GOOS, runtime.GOARCH)

	var asset, checksums *Asset
	for i := range release.Assets {
		switch release.Assets[i].Name {
		case assetName:
			asset = &release.Assets[i]
		case "checksums.txt":
			checksums = &release.Assets[i]
		}
	}
	if asset == nil {
		return nil, fmt.Errorf("release %s has no asset for %s/%s",
			release.TagName, runtime.GOOS, runtime.GOARCH)
	}

	info := &Info{
		CurrentVersion: currentVersion,
		LatestVersion:  release.TagName,
		AssetName:      asset.Name,
		DownloadURL:    asset.BrowserDownloadURL,
		Size:           asset.Size,
	}
	if checksums != nil {
		info.Checksum, _ = c.fetchChecksum(ctx, checksums.BrowserDownloadURL, assetName)
	}
	return info, nil
}

// Apply downloads the release archive, verifies its checksum, and
// replaces the running executable. Refuses to install anything without
// a published checksum.
func (c *Checker) Apply(ctx context.Context, info *Info) error {
	if info.Checksum == "" {
		return fmt.Errorf("no checksum published for %s, refusing to install", info.AssetName)
	}

	tmpDir, err := os.MkdirTemp("", binaryName+"-update-*")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	archivePath := filepath.Join(tmpDir, info.AssetName)
	sum, err := c.download(ctx, info.DownloadURL, archivePath)
	if err != nil {
		return fmt.Errorf("download %s: %w", info.AssetName, err)
	}
	if !strings.EqualFold(sum, info.Checksum) {
		return fmt.Errorf("checksum mismatch for %s: want %s, got %s",
			info.AssetName, info.Checksum, sum)
	}

	binPath, err := extractBinary(archivePath, tmpDir)
	if err != nil {
		return fmt.Errorf("extract %s: %w", info.AssetName, err)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate current executable: %w", err)
	}
	if exe, err = filepath.EvalSymlinks(exe); err != nil {
		return fmt.Errorf("resolve executable path: %w", err)
	}
	return replaceBinary(binPath, exe)
}

func (c *Checker) latestRelease(ctx context.Context) (*Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.releasesURL(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GitHub API returned %s", resp.Status)
	}

	var release Release
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, err
	}
	if release.TagName == "" {
		return nil, fmt.Errorf("release payload missing tag name")
	}
	return &release, nil
}

// fetchChecksum pulls checksums.txt and returns the SHA256 for the
// named asset. Lines follow sha256sum output: "<hex>  <name>".
func (c *Checker) fetchChecksum(ctx context.Context, url, assetName string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch checksums: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == assetName && len(fields[0]) == 64 {
			return strings.ToLower(fields[0]), nil
		}
	}
	return "", fmt.Errorf("no checksum entry for %s", assetName)
}

// download writes the URL body to dest and returns its SHA256 hex.
func (c *Checker) download(ctx context.Context, url, dest string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed: %s", resp.Status)
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer out.Close()

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(out, hasher), resp.Body); err != nil {
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// extractBinary pulls the prodsensor-action binary out of a tar.gz
// archive. Other entries, symlinks included, are ignored.
func extractBinary(archivePath, destDir string) (string, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	gzr, err := gzip.NewReader(f)
	if err != nil {
		return "", err
	}
	defer gzr.Close()

	want := binaryName
	if runtime.GOOS == "windows" {
		want += ".exe"
	}

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return "", fmt.Errorf("archive has no %s binary", want)
		}
		if err != nil {
			return "", err
		}
		if header.Typeflag != tar.TypeReg || filepath.Base(header.Name) != want {
			continue
		}
		// header.Name is attacker-influenced; write under our own name only.
		target := filepath.Join(destDir, want)
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
		if err != nil {
			return "", err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return "", err
		}
		if err := out.Close(); err != nil {
			return "", err
		}
		return target, nil
	}
}

// replaceBinary swaps dst for src, keeping a .old backup to roll back
// on failure. Renaming a running executable works on Unix; on Windows
// the rename of the live file may fail and the error says so.
func replaceBinary(src, dst string) error {
	backup := dst + ".old"
	os.Remove(backup)

	if _, err := os.Stat(dst); err == nil {
		if err := os.Rename(dst, backup); err != nil {
			return fmt.Errorf("back up %s: %w", dst, err)
		}
	}
	if err := copyFile(src, dst); err != nil {
		os.Rename(backup, dst)
		return fmt.Errorf("install %s: %w", dst, err)
	}
	if err := os.Chmod(dst, 0755); err != nil {
		return fmt.Errorf("chmod %s: %w", dst, err)
	}
	os.Remove(backup)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

type cachedCheck struct {
	CheckedAt time.Time `json:"checked_at"`
	Tag       string    `json:"tag"`
}

func (c *Checker) cachedTag() (string, bool) {
	dir := c.cacheDir()
	if dir == "" {
		return "", false
	}
	data, err := os.ReadFile(filepath.Join(dir, cacheFileName))
	if err != nil {
		return "", false
	}
	var cached cachedCheck
	if err := json.Unmarshal(data, &cached); err != nil {
		return "", false
	}
	if time.Since(cached.CheckedAt) > cacheWindow {
		return "", false
	}
	return cached.Tag, true
}

func (c *Checker) saveCachedTag(tag string) {
	dir := c.cacheDir()
	if dir == "" {
		return
	}
	data, err := json.Marshal(cachedCheck{CheckedAt: time.Now(), Tag: tag})
	if err != nil {
		return
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return
	}
	os.WriteFile(filepath.Join(dir, cacheFileName), data, 0644)
}

// isNewer reports whether release tag a is a later semver than version
// b. Dev builds ("dev", bare hashes) never count as outdated since
// their relationship to releases is unknown.
func isNewer(a, b string) bool {
	baseA, okA := baseSemver(a)
	baseB, okB := baseSemver(b)
	if !okA || !okB {
		return false
	}
	for i := 0; i < 3; i++ {
		na := semverPart(baseA, i)
		nb := semverPart(baseB, i)
		if na != nb {
			return na > nb
		}
	}
	return false
}

// baseSemver strips a leading v and any -suffix (prerelease, git
// describe) and reports whether a dotted numeric version remains.
func baseSemver(v string) (string, bool) {
	v = strings.TrimPrefix(v, "v")
	if idx := strings.IndexByte(v, '-'); idx > 0 {
		v = v[:idx]
	}
	if v == "" || v[0] < '0' || v[0] > '9' || !strings.Contains(v, ".") {
		return "", false
	}
	return v, true
}

func semverPart(v string, i int) int {
	parts := strings.Split(v, ".")
	if i >= len(parts) {
		return 0
	}
	n, _ := strconv.Atoi(parts[i])
	return n
}
