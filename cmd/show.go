package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/release-tools/go-bumpversion/internal/config"
)

var flagShowFormat string

// showCmd prints the resolved configuration and current version.
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the resolved configuration and current version",
	Args:  cobra.NoArgs,
	RunE:  showRunE,
}

func init() {
	showCmd.Flags().StringVar(&flagShowFormat, "format", "", "output format: json or empty for plain text")
	rootCmd.AddCommand(showCmd)
}

// showInfo is the serializable view of the resolved configuration.
type showInfo struct {
	ConfigFile     string   `json:"config_file"`
	CurrentVersion string   `json:"current_version"`
	Components     []string `json:"components"`
	Commit         bool     `json:"commit"`
	Tag            bool     `json:"tag"`
	SignTags       bool     `json:"sign_tags"`
	AllowDirty     bool     `json:"allow_dirty"`
	TagName        string   `json:"tag_name"`
	Message        string   `json:"message"`
	Files          []string `json:"files"`
}

func showRunE(cmd *cobra.Command, _ []string) error {
	cmd.SilenceUsage = true

	var cfg *config.Config
	var err error
	if flagConfig != "" {
		cfg, err = config.Load(flagConfig)
	} else {
		cfg, err = config.Discover(flagDir)
	}
	if err != nil {
		return err
	}

	resolved, err := cfg.Resolve()
	if err != nil {
		return err
	}

	info := showInfo{
		ConfigFile:     cfg.Path,
		CurrentVersion: resolved.CurrentVersion,
		Components:     resolved.VersionSpec.ComponentNames(),
		Commit:         resolved.Commit,
		Tag:            resolved.Tag,
		SignTags:       resolved.SignTags,
		AllowDirty:     resolved.AllowDirty,
		TagName:        resolved.TagName.String(),
		Message:        resolved.Message.String(),
	}
	for _, f := range resolved.Files {
		info.Files = append(info.Files, f.Path)
	}

	out := cmd.OutOrStdout()
	if flagShowFormat == "json" {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling configuration: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "config file:     %s\n", info.ConfigFile)
	fmt.Fprintf(out, "current version: %s\n", info.CurrentVersion)
	fmt.Fprintf(out, "components:      %v\n", info.Components)
	fmt.Fprintf(out, "commit:          %t\n", info.Commit)
	fmt.Fprintf(out, "tag:             %t (sign: %t)\n", info.Tag, info.SignTags)
	fmt.Fprintf(out, "tag name:        %s\n", info.TagName)
	fmt.Fprintf(out, "message:         %s\n", info.Message)
	for _, f := range info.Files {
		fmt.Fprintf(out, "file:            %s\n", f)
	}
	return nil
}
