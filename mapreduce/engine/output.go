package engine

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"mrjobs/utils"
)

// SuccessFile marks a completed output directory and lists its part files.
const SuccessFile = "_SUCCESS"

var ErrOutputCorrupt = errors.New("output does not match its manifest")

// PartInfo is the metadata of one reduce output file.
type PartInfo struct {
	Name string
	Size int64
	Hash string
}

func partName(partition int) string {
	return fmt.Sprintf("part-r-%05d", partition)
}

// describePart stats and hashes the part file at path.
func describePart(path string) (PartInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return PartInfo{}, err
	}
	hash, err := utils.HashFile(path)
	if err != nil {
		return PartInfo{}, err
	}
	return PartInfo{Name: filepath.Base(path), Size: info.Size(), Hash: hash}, nil
}

// writeManifest writes the success marker, one "name\tsize\tmd5" line per part.
func writeManifest(outputDir string, parts []PartInfo) error {
	file, err := os.Create(filepath.Join(outputDir, SuccessFile))
	if err != nil {
		return err
	}
	w := bufio.NewWriter(file)
	for _, p := range parts {
		fmt.Fprintf(w, "%s\t%d\t%s\n", p.Name, p.Size, p.Hash)
	}
	if err := w.Flush(); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// ReadManifest parses the success marker of a finished output directory.
func ReadManifest(outputDir string) ([]PartInfo, error) {
	data, err := os.ReadFile(filepath.Join(outputDir, SuccessFile))
	if err != nil {
		return nil, err
	}
	var infos []PartInfo
	for i, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			return nil, fmt.Errorf("%s line %d: want 3 fields, got %d", SuccessFile, i+1, len(fields))
		}
		size, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", SuccessFile, i+1, err)
		}
		infos = append(infos, PartInfo{Name: fields[0], Size: size, Hash: fields[2]})
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("%s lists no part files", SuccessFile)
	}
	return infos, nil
}

// VerifyOutput recomputes every part file digest and compares it with the
// manifest.
func VerifyOutput(outputDir string) ([]PartInfo, error) {
	want, err := ReadManifest(outputDir)
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, p := range want {
		got, err := describePart(filepath.Join(outputDir, p.Name))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name, err))
			continue
		}
		if got.Size != p.Size || got.Hash != p.Hash {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name, ErrOutputCorrupt))
		}
	}
	return want, errors.Join(errs...)
}
