package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Loader loads a batch of SQL migrations.
type Loader interface {
	LoadMigrations() ([]*SQLMigration, error)
}

// ParseFilenameFn defines a function to extract migration details from a
// file name. It returns the version, name, direction ("up" or "down"), and a
// boolean indicating if parsing succeeded.
type ParseFilenameFn func(filename string) (
	version string, name string, direction string, ok bool,
)

// defaultParseFilename is the built-in parser that expects file names in the
// format "001_create_table_up.sql" or "001_create_table_down.sql".
func defaultParseFilename(filename string) (string, string, string, bool) {
	base := strings.TrimSuffix(filename, path.Ext(filename))
	parts := strings.Split(base, "_")
	if len(parts) < 3 {
		return "", "", "", false
	}
	version := parts[0]
	direction := strings.ToLower(parts[len(parts)-1])
	if direction != "up" && direction != "down" {
		return "", "", "", false
	}
	name := strings.Join(parts[1:len(parts)-1], "_")
	return version, name, direction, true
}

// DefaultExts are the file extensions DirLoader accepts by default.
var DefaultExts = []string{".sql", ".sqlite"}

// DirLoader loads migrations from a directory, one file per direction. It
// supports optional hooks tied to file names.
type DirLoader struct {
	Dir string
	// FS is read instead of the OS file system when set; Dir is then a path
	// inside FS.
	FS fs.FS
	// Optional filename parser, defaults to defaultParseFilename.
	FilenameParser ParseFilenameFn
	// Optional allowed extensions, defaults to DefaultExts.
	AllowedExts []string
	// Optional ResolveHooks returns hook functions for the given filename.
	ResolveHooks func(filename string) (preHook FileHookFn, postHook FileHookFn)
	// Transactional marks every loaded migration transactional.
	Transactional bool

	logger *zap.Logger
}

// NewDirLoader creates a DirLoader for the given directory using the
// default parser and allowed extensions.
//
// Parameters:
//   - dir: The directory to load migrations from.
//
// Returns:
//   - *DirLoader: A new DirLoader instance.
func NewDirLoader(dir string) *DirLoader {
	return &DirLoader{
		Dir:            dir,
		FilenameParser: defaultParseFilename,
		AllowedExts:    DefaultExts,
	}
}

// NewFSLoader creates a DirLoader reading dir inside fsys, for example an
// embed.FS.
func NewFSLoader(fsys fs.FS, dir string) *DirLoader {
	l := NewDirLoader(dir)
	l.FS = fsys
	return l
}

// WithFilenameParser returns a new DirLoader with the given parser.
func (d *DirLoader) WithFilenameParser(parser ParseFilenameFn) *DirLoader {
	new := *d
	new.FilenameParser = parser
	return &new
}

// WithAllowedExts returns a new DirLoader with the given allowed
// extensions.
func (d *DirLoader) WithAllowedExts(exts []string) *DirLoader {
	new := *d
	new.AllowedExts = exts
	return &new
}

// WithTransactional returns a new DirLoader with the transactional flag
// set.
func (d *DirLoader) WithTransactional(transactional bool) *DirLoader {
	new := *d
	new.Transactional = transactional
	return &new
}

// WithLogger returns a new DirLoader reporting skipped files to logger.
func (d *DirLoader) WithLogger(logger *zap.Logger) *DirLoader {
	new := *d
	new.logger = logger
	return &new
}

func (d *DirLoader) fsys() (fs.FS, string) {
	if d.FS != nil {
		return d.FS, d.Dir
	}
	return os.DirFS(d.Dir), "."
}

// LoadMigrations loads and merges migrations from the directory.
//
// Returns:
//   - []*SQLMigration: The loaded migrations sorted by version.
//   - error: An error if reading fails.
func (d *DirLoader) LoadMigrations() ([]*SQLMigration, error) {
	fsys, root := d.fsys()
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, err
	}

	logger := d.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	parser := d.FilenameParser
	if parser == nil {
		parser = defaultParseFilename
	}
	allowed := d.AllowedExts
	if allowed == nil {
		allowed = DefaultExts
	}

	mMap := make(map[string]*SQLMigration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(path.Ext(name))
		if !slices.Contains(allowed, ext) {
			logger.Debug("skipping file with unsupported extension",
				zap.String("file", name), zap.String("ext", ext))
			continue
		}
		version, migName, direction, ok := parser(name)
		if !ok {
			logger.Debug("skipping file that does not parse", zap.String("file", name))
			continue
		}

		mig, exists := mMap[version]
		if !exists {
			mig = NewSQLMigration(version, migName).WithTransactional(d.Transactional)
			mMap[version] = mig
		}

		content, err := fs.ReadFile(fsys, path.Join(root, name))
		if err != nil {
			return nil, err
		}
		fullPath := path.Join(d.Dir, name)

		var preHook, postHook FileHookFn
		if d.ResolveHooks != nil {
			preHook, postHook = d.ResolveHooks(name)
		}

		switch direction {
		case "up":
			mig.UpSteps = withHooks(mig.UpSteps, string(content), fullPath, preHook, postHook, true)
		case "down":
			mig.DownSteps = withHooks(mig.DownSteps, string(content), fullPath, preHook, postHook, false)
		default:
			return nil, fmt.Errorf("invalid direction: %s", direction)
		}
	}

	migrations := make([]*SQLMigration, 0, len(mMap))
	for _, mig := range mMap {
		migrations = append(migrations, mig)
	}
	sortByVersion(migrations)
	logger.Debug("loaded migrations from directory",
		zap.Int("count", len(migrations)), zap.String("dir", d.Dir))
	return migrations, nil
}

// withHooks appends the SQL step for content, wrapped by the optional pre
// and post hooks, to steps.
func withHooks(
	steps []Step,
	content string,
	filePath string,
	preHook, postHook FileHookFn,
	up bool,
) []Step {
	hookStep := func(h FileHookFn) Step {
		fn := func(ctx context.Context, exec Executor) error {
			return h(ctx, exec, filePath)
		}
		if up {
			return NewHookStep().WithUpHook(fn)
		}
		return NewHookStep().WithDownHook(fn)
	}
	if preHook != nil {
		steps = append(steps, hookStep(preHook))
	}
	steps = append(steps, NewSQLStep(content))
	if postHook != nil {
		steps = append(steps, hookStep(postHook))
	}
	return steps
}

// sortByVersion orders migrations by version. Versions compare as strings,
// which matches numeric order for zero-padded versions.
func sortByVersion(migs []*SQLMigration) {
	sort.SliceStable(migs, func(i, j int) bool {
		return migs[i].Version < migs[j].Version
	})
}

// FileLoader loads a single migration file whose up and down halves are
// separated by a "-- DOWN" line.
type FileLoader struct {
	FilePath string
	// Optional filename parser. Without one the file's base name is used as
	// the version.
	FilenameParser ParseFilenameFn
	PreHook        FileHookFn
	PostHook       FileHookFn
	Transactional  bool
}

// NewFileLoader returns a new FileLoader.
func NewFileLoader(filePath string) *FileLoader {
	return &FileLoader{FilePath: filePath}
}

// WithFilenameParser returns a new FileLoader with the given parser.
func (f *FileLoader) WithFilenameParser(parser ParseFilenameFn) *FileLoader {
	new := *f
	new.FilenameParser = parser
	return &new
}

// WithPreHook returns a new FileLoader with the given pre-hook.
func (f *FileLoader) WithPreHook(preHook FileHookFn) *FileLoader {
	new := *f
	new.PreHook = preHook
	return &new
}

// WithPostHook returns a new FileLoader with the given post-hook.
func (f *FileLoader) WithPostHook(postHook FileHookFn) *FileLoader {
	new := *f
	new.PostHook = postHook
	return &new
}

// LoadMigrations loads the migration from the file.
//
// Returns:
//   - []*SQLMigration: A slice containing the loaded migration.
//   - error: An error if loading fails.
func (f *FileLoader) LoadMigrations() ([]*SQLMigration, error) {
	content, err := os.ReadFile(f.FilePath)
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(string(content), "-- DOWN", 2)
	upSQL := strings.TrimSpace(parts[0])
	downSQL := ""
	if len(parts) > 1 {
		downSQL = strings.TrimSpace(parts[1])
	}

	base := path.Base(f.FilePath)
	version := strings.TrimSuffix(base, path.Ext(base))
	name := ""
	if f.FilenameParser != nil {
		if v, n, _, ok := f.FilenameParser(base); ok {
			version, name = v, n
		}
	}

	mig := NewSQLMigration(version, name).WithTransactional(f.Transactional)
	mig.UpSteps = withHooks(nil, upSQL, f.FilePath, f.PreHook, f.PostHook, true)
	mig.DownSteps = withHooks(nil, downSQL, f.FilePath, f.PreHook, f.PostHook, false)
	return []*SQLMigration{mig}, nil
}

// VarLoader uses SQL queries defined in variables.
type VarLoader struct {
	Version string
	Name    string
	UpSQL   string
	DownSQL string
}

// NewVarLoader creates a new VarLoader.
//
// Parameters:
//   - version: The version of the migration.
//   - name: The name of the migration.
//   - upSQL: The SQL to execute when applying the migration.
//   - downSQL: The SQL to execute when removing the migration.
//
// Returns:
//   - *VarLoader: A new VarLoader.
func NewVarLoader(version, name, upSQL, downSQL string) *VarLoader {
	return &VarLoader{
		Version: version,
		Name:    name,
		UpSQL:   upSQL,
		DownSQL: downSQL,
	}
}

// LoadMigrations loads the variable-defined migration.
func (v *VarLoader) LoadMigrations() ([]*SQLMigration, error) {
	mig := NewSQLMigration(v.Version, v.Name).
		WithUpSteps([]Step{NewSQLStep(v.UpSQL)}).
		WithDownSteps([]Step{NewSQLStep(v.DownSQL)})
	return []*SQLMigration{mig}, nil
}
