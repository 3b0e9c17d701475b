package cmd

import (
	"errors"

	"github.com/release-tools/go-bumpversion/internal/config"
	"github.com/release-tools/go-bumpversion/internal/files"
	"github.com/release-tools/go-bumpversion/internal/version"
	"github.com/release-tools/go-bumpversion/pkg/bumpversion"
)

// Exit codes by error kind.
const (
	exitOK           = 0
	exitConfigError  = 1
	exitVersionError = 2
	exitNoMatch      = 3
	exitDirtyTree    = 4
	exitVCSError     = 5
	exitOtherError   = 6
)

// exitCode maps an error to the process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	var (
		parseErr     *config.ParseError
		schemaErr    *config.SchemaError
		unparseable  *version.UnparseableVersionError
		invalidValue *version.InvalidValueError
		invalidComp  *version.InvalidComponentError
		exhausted    *version.BumpExhaustedError
		noMatch      *files.NoMatchesError
		notFound     *files.FileNotFoundError
		conflict     *files.ConflictError
		dirty        *bumpversion.DirtyWorkingTreeError
		vcsErr       *bumpversion.VCSError
	)

	switch {
	case errors.As(err, &parseErr), errors.As(err, &schemaErr), errors.Is(err, config.ErrNoConfig):
		return exitConfigError
	case errors.As(err, &unparseable), errors.As(err, &invalidValue),
		errors.As(err, &invalidComp), errors.As(err, &exhausted):
		return exitVersionError
	case errors.As(err, &noMatch), errors.As(err, &notFound), errors.As(err, &conflict):
		return exitNoMatch
	case errors.As(err, &dirty):
		return exitDirtyTree
	case errors.As(err, &vcsErr):
		return exitVCSError
	default:
		return exitOtherError
	}
}
