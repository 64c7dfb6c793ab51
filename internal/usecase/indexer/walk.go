package indexer

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// maxFileSizeBytes is the default per-file skip threshold; files larger
// than this are never read into memory for chunking.
const maxFileSizeBytes = 1 << 20 // 1 MB

// sourceExtensions is the fixed allowlist of file extensions the walker
// considers source code worth indexing.
var sourceExtensions = map[string]bool{
	".py": true, ".js": true, ".jsx": true, ".ts": true, ".tsx": true,
	".go": true, ".rs": true,
	".java": true, ".kt": true, ".kts": true,
	".c": true, ".h": true, ".cpp": true, ".cc": true, ".hpp": true,
	".cs": true, ".swift": true, ".rb": true, ".php": true,
	".scala": true, ".clj": true, ".cljs": true, ".ex": true, ".exs": true,
	".dart": true, ".lua": true, ".r": true,
}

// skipDirs lists dependency/build directories the walker never descends
// into, regardless of repository layout.
var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, "target": true,
	".venv": true, "venv": true, "dist": true, "build": true,
	".idea": true, ".vscode": true, "third_party": true, ".tox": true,
	"__pycache__": true, ".mypy_cache": true,
}

// sourceFile is one file the walker selected for chunking.
type sourceFile struct {
	AbsPath  string
	RelPath  string
	SizeByte int64
}

// walkRepo returns every allowlisted, size-eligible source file under
// root, in deterministic (lexical) order.
func walkRepo(root string, maxFileSize int64) ([]sourceFile, error) {
	if maxFileSize <= 0 {
		maxFileSize = maxFileSizeBytes
	}

	var files []sourceFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !sourceExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxFileSize {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, sourceFile{AbsPath: path, RelPath: filepath.ToSlash(rel), SizeByte: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
