package driver

import (
	"fmt"
	"os"
	"path/filepath"

	git "github.com/go-git/go-git/v5"
	"github.com/rs/zerolog"

	"github.com/shelbyd/flock-deprecated/pkg/asm"
	"github.com/shelbyd/flock-deprecated/pkg/program"
)

// Source is assembly text together with where it came from.
type Source struct {
	Name     string
	Data     []byte
	Revision string // commit hash for sources read from git
}

// Loader reads program sources from disk or git and assembles them.
// Repositories opened for git sources are cached until Close.
type Loader struct {
	log   zerolog.Logger
	repos map[string]*git.Repository
}

func NewLoader(log zerolog.Logger) *Loader {
	return &Loader{
		log:   log,
		repos: make(map[string]*git.Repository),
	}
}

// ReadFile reads a source file from disk.
func (l *Loader) ReadFile(path string) (*Source, error) {
	if path == "" {
		return nil, fmt.Errorf("loader: empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("loader: resolve %s: %w", path, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("loader: %w", err)
	}
	l.log.Debug().Str("path", abs).Int("bytes", len(data)).Msg("read source")
	return &Source{Name: path, Data: data}, nil
}

// Load reads and assembles a program file.
func (l *Loader) Load(path string) (*program.Program, error) {
	src, err := l.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return l.Assemble(src)
}

// LoadGit reads and assembles a program stored in a git repository.
func (l *Loader) LoadGit(ref GitRef) (*program.Program, error) {
	src, err := l.ReadGit(ref)
	if err != nil {
		return nil, err
	}
	return l.Assemble(src)
}

// Assemble turns a source into a program.
func (l *Loader) Assemble(src *Source) (*program.Program, error) {
	prog, err := asm.Assemble(src.Name, src.Data)
	if err != nil {
		return nil, err
	}
	l.log.Debug().Str("source", src.Name).Int("instructions", prog.Len()).Msg("assembled")
	return prog, nil
}

// Close drops cached repositories.
func (l *Loader) Close() error {
	clear(l.repos)
	return nil
}
