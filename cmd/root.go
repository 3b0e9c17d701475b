// Package cmd wires the bumpversion CLI: the root bump command plus the
// show and version subcommands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/release-tools/go-bumpversion/internal/config"
	"github.com/release-tools/go-bumpversion/pkg/bumpversion"
)

// Flags shared across commands.
var (
	flagDir                  string
	flagConfig               string
	flagCurrentVersion       string
	flagNewVersion           string
	flagParse                string
	flagSerialize            []string
	flagSearch               string
	flagReplace              string
	flagRegex                bool
	flagNoRegex              bool
	flagDryRun               bool
	flagAllowDirty           bool
	flagNoAllowDirty         bool
	flagCommit               bool
	flagNoCommit             bool
	flagTag                  bool
	flagNoTag                bool
	flagSignTags             bool
	flagMessage              string
	flagTagName              string
	flagTagMessage           string
	flagCommitArgs           string
	flagNoConfiguredFiles    bool
	flagIgnoreMissingFiles   bool
	flagNoIgnoreMissingFiles bool
	flagIgnoreMissingVersion bool
	flagVerbose              bool
	flagLogLevel             string
)

// rootCmd bumps the named version component.
var rootCmd = &cobra.Command{
	Use:   "bumpversion [component]",
	Short: "Bump project version strings across the working tree",
	Long: "bumpversion computes the next version from the configured version grammar,\n" +
		"rewrites every configured occurrence, updates its own configuration file,\n" +
		"and optionally commits and tags the result.",
	Args: cobra.MaximumNArgs(1),
	RunE: bumpRunE,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagDir, "dir", ".", "working directory root")
	pf.StringVar(&flagConfig, "config", "", "path to config file (default: auto-detect)")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "enable progress output")
	pf.StringVar(&flagLogLevel, "log-level", "", "log verbosity: quiet, info, debug")

	f := rootCmd.Flags()
	f.StringVar(&flagCurrentVersion, "current-version", "", "override the configured current version")
	f.StringVar(&flagNewVersion, "new-version", "", "target version, skipping the bump algebra")
	f.StringVar(&flagParse, "parse", "", "regex parsing the version string")
	f.StringArrayVar(&flagSerialize, "serialize", nil, "template for serializing the version (repeatable)")
	f.StringVar(&flagSearch, "search", "", "template for the string to search for")
	f.StringVar(&flagReplace, "replace", "", "template for the replacement string")
	f.BoolVar(&flagRegex, "regex", false, "treat the search template as a regular expression")
	f.BoolVar(&flagNoRegex, "no-regex", false, "treat the search template literally")
	f.BoolVarP(&flagDryRun, "dry-run", "n", false, "compute and display diffs, write nothing")
	f.BoolVar(&flagAllowDirty, "allow-dirty", false, "proceed even if the working tree is dirty")
	f.BoolVar(&flagNoAllowDirty, "no-allow-dirty", false, "fail if the working tree is dirty")
	f.BoolVar(&flagCommit, "commit", false, "commit the rewritten files")
	f.BoolVar(&flagNoCommit, "no-commit", false, "do not commit the rewritten files")
	f.BoolVar(&flagTag, "tag", false, "tag the commit")
	f.BoolVar(&flagNoTag, "no-tag", false, "do not tag the commit")
	f.BoolVar(&flagSignTags, "sign-tags", false, "sign the created tag")
	f.StringVar(&flagMessage, "message", "", "commit message template")
	f.StringVar(&flagTagName, "tag-name", "", "tag name template")
	f.StringVar(&flagTagMessage, "tag-message", "", "tag message template")
	f.StringVar(&flagCommitArgs, "commit-args", "", "extra arguments for the commit command (ignored with a warning by the go-git backend)")
	f.BoolVar(&flagNoConfiguredFiles, "no-configured-files", false, "ignore the files listed in the configuration")
	f.BoolVar(&flagIgnoreMissingFiles, "ignore-missing-files", false, "ignore missing files when rewriting")
	f.BoolVar(&flagNoIgnoreMissingFiles, "no-ignore-missing-files", false, "fail on missing files when rewriting")
	f.BoolVar(&flagIgnoreMissingVersion, "ignore-missing-version", false, "ignore files that do not contain the search pattern")
}

func bumpRunE(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	component := ""
	if len(args) > 0 {
		component = args[0]
	}
	if component == "" && flagNewVersion == "" {
		cmd.SilenceUsage = false
		return fmt.Errorf("a version component to bump (or --new-version) is required")
	}

	_, err := bumpversion.Run(bumpversion.Options{
		Dir:        flagDir,
		ConfigPath: flagConfig,
		Component:  component,
		NewVersion: flagNewVersion,
		Overrides:  cliOverrides(cmd),
		Verbose:    verbose(),
	})
	return err
}

// cliOverrides translates the changed flags into per-field overrides;
// untouched flags leave the config values in place.
func cliOverrides(cmd *cobra.Command) config.Overrides {
	o := config.Overrides{
		CurrentVersion: flagCurrentVersion,
		Serialize:      flagSerialize,
		Search:         flagSearch,
		Replace:        flagReplace,
		Message:        flagMessage,
		TagName:        flagTagName,
		TagMessage:     flagTagMessage,
		CommitArgs:     flagCommitArgs,
	}
	if flagParse != "" {
		o.Parse = []string{flagParse}
	}

	boolFlag := func(name string, value bool) *bool {
		if cmd.Flags().Changed(name) {
			return &value
		}
		return nil
	}
	negatable := func(name, noName string, value, noValue bool) *bool {
		if cmd.Flags().Changed(noName) && noValue {
			off := false
			return &off
		}
		return boolFlag(name, value)
	}
	o.DryRun = boolFlag("dry-run", flagDryRun)
	o.Regex = negatable("regex", "no-regex", flagRegex, flagNoRegex)
	o.AllowDirty = negatable("allow-dirty", "no-allow-dirty", flagAllowDirty, flagNoAllowDirty)
	o.Commit = negatable("commit", "no-commit", flagCommit, flagNoCommit)
	o.Tag = negatable("tag", "no-tag", flagTag, flagNoTag)
	o.SignTags = boolFlag("sign-tags", flagSignTags)
	o.NoConfiguredFiles = boolFlag("no-configured-files", flagNoConfiguredFiles)
	o.IgnoreMissingFiles = negatable("ignore-missing-files", "no-ignore-missing-files",
		flagIgnoreMissingFiles, flagNoIgnoreMissingFiles)
	o.IgnoreMissingVersion = boolFlag("ignore-missing-version", flagIgnoreMissingVersion)
	return o
}

func verbose() bool {
	return flagVerbose || flagLogLevel == "debug"
}

// Execute runs the root command and exits with the code matching the
// error kind.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}
