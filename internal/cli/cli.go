// Package cli parses livesub command lines into a Parsed invocation.
package cli

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/rbright/livesub/internal/domain"
)

type Command string

const (
	CommandRun      Command = "run"
	CommandStart    Command = "start"
	CommandStop     Command = "stop"
	CommandStatus   Command = "status"
	CommandSessions Command = "sessions"
	CommandSettings Command = "settings"
	CommandDisplay  Command = "display"
	CommandDevices  Command = "devices"
	CommandHistory  Command = "history"
	CommandDoctor   Command = "doctor"
	CommandVersion  Command = "version"
	CommandHelp     Command = "help"
)

// Parsed is one resolved invocation.
type Parsed struct {
	Command    Command
	ConfigPath string
	LogLevel   string
	JSON       bool
	ShowHelp   bool

	// Source is the positional source id for start, stop, status, settings, history.
	Source string
	// Limit caps history rows.
	Limit int
	// Patch holds the settings flags that were set.
	Patch domain.SettingsPatch
	// Display holds display flag values; DisplayFields names the ones set.
	Display       domain.Display
	DisplayFields []string
}

// ApplyDisplay copies the display flags that were set onto base.
func (p Parsed) ApplyDisplay(base domain.Display) domain.Display {
	for _, field := range p.DisplayFields {
		switch field {
		case "font-family":
			base.FontFamily = p.Display.FontFamily
		case "font-size":
			base.FontSize = p.Display.FontSize
		case "font-weight":
			base.FontWeight = p.Display.FontWeight
		case "font-color":
			base.FontColor = p.Display.FontColor
		case "background-color":
			base.BackgroundColor = p.Display.BackgroundColor
		case "background-opacity":
			base.BackgroundOpacity = p.Display.BackgroundOpacity
		case "border-radius":
			base.BorderRadius = p.Display.BorderRadius
		case "position":
			base.Position = p.Display.Position
		case "align":
			base.HorizontalAlign = p.Display.HorizontalAlign
		case "margin":
			base.MarginOffset = p.Display.MarginOffset
		case "show-original":
			base.ShowOriginal = p.Display.ShowOriginal
		case "auto-hide":
			base.AutoHide = p.Display.AutoHide
		case "auto-hide-seconds":
			base.AutoHideSeconds = p.Display.AutoHideSeconds
		case "show-interim":
			base.ShowInterim = p.Display.ShowInterim
		}
	}
	return base
}

// Parse resolves args without running anything.
func Parse(args []string) (Parsed, error) {
	parsed := Parsed{}
	root := newRoot(&parsed)
	// cobra falls back to os.Args for nil args.
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	var sink bytes.Buffer
	root.SetOut(&sink)
	root.SetErr(&sink)

	if err := root.Execute(); err != nil {
		return Parsed{}, err
	}
	if parsed.Command == "" || parsed.Command == CommandHelp {
		parsed.Command = CommandHelp
		parsed.ShowHelp = true
	}
	return parsed, nil
}

// HelpText renders top-level usage.
func HelpText(binaryName string) string {
	root := newRoot(&Parsed{})
	root.Use = binaryName
	return root.UsageString()
}

func newRoot(parsed *Parsed) *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:           "livesub",
		Short:         "Live translated subtitles for audio sources",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				parsed.Command = CommandVersion
				return nil
			}
			parsed.Command = CommandHelp
			return nil
		},
	}
	// Help is reported through Parsed, never printed by cobra.
	root.SetHelpFunc(func(*cobra.Command, []string) {
		parsed.Command = CommandHelp
	})

	flags := root.PersistentFlags()
	flags.StringVar(&parsed.ConfigPath, "config", "", "Config file path (default: $XDG_CONFIG_HOME/livesub/config.conf)")
	flags.StringVar(&parsed.LogLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.BoolVar(&parsed.JSON, "json", false, "Print machine-readable JSON")
	root.Flags().BoolVar(&showVersion, "version", false, "Show version")

	root.AddCommand(
		leaf(parsed, CommandRun, "run", "Run the subtitle daemon in the foreground", cobra.NoArgs),
		leaf(parsed, CommandStart, "start [SOURCE]", "Start live subtitles for a source (default: audio.default_source)", cobra.MaximumNArgs(1)),
		leaf(parsed, CommandStop, "stop SOURCE", "Stop live subtitles for a source", cobra.ExactArgs(1)),
		leaf(parsed, CommandStatus, "status [SOURCE]", "Show daemon or source status", cobra.MaximumNArgs(1)),
		leaf(parsed, CommandSessions, "sessions", "List capture sessions", cobra.NoArgs),
		settingsCommand(parsed),
		displayCommand(parsed),
		leaf(parsed, CommandDevices, "devices", "List audio sources", cobra.NoArgs),
		historyCommand(parsed),
		leaf(parsed, CommandDoctor, "doctor", "Run configuration and environment checks", cobra.NoArgs),
		leaf(parsed, CommandVersion, "version", "Print version information", cobra.NoArgs),
	)
	return root
}

func leaf(parsed *Parsed, command Command, use, short string, args cobra.PositionalArgs) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed.Command = command
			if len(args) > 0 {
				parsed.Source = strings.TrimSpace(args[0])
				if parsed.Source == "" {
					return errors.New("source must not be empty")
				}
			}
			return nil
		},
	}
}

func settingsCommand(parsed *Parsed) *cobra.Command {
	var (
		service        string
		sourceLanguage string
		targetLanguage string
		sensitivity    float64
		continuous     bool
		interim        bool
		apiKey         string
		model          string
		enhance        bool
	)

	cmd := leaf(parsed, CommandSettings, "settings [SOURCE]", "Show or change recognition and translation settings", cobra.MaximumNArgs(1))
	run := cmd.RunE
	cmd.RunE = func(c *cobra.Command, args []string) error {
		if err := run(c, args); err != nil {
			return err
		}
		f := c.Flags()
		patch := &parsed.Patch
		if f.Changed("service") {
			value := domain.TranslationService(strings.TrimSpace(service))
			patch.TranslationService = &value
		}
		if f.Changed("source-language") {
			patch.SourceLanguage = &sourceLanguage
		}
		if f.Changed("target-language") {
			patch.TargetLanguage = &targetLanguage
		}
		if f.Changed("sensitivity") {
			patch.Sensitivity = &sensitivity
		}
		if f.Changed("continuous") {
			patch.Continuous = &continuous
		}
		if f.Changed("interim") {
			patch.InterimResults = &interim
		}
		if f.Changed("api-key") {
			patch.APIKey = &apiKey
		}
		if f.Changed("model") {
			patch.Model = &model
		}
		if f.Changed("enhance") {
			patch.Enhance = &enhance
		}
		return nil
	}

	f := cmd.Flags()
	f.StringVar(&service, "service", "", "Translation service: passthrough, free, keyed")
	f.StringVar(&sourceLanguage, "source-language", "", "Spoken language (BCP 47, e.g. ko-KR)")
	f.StringVar(&targetLanguage, "target-language", "", "Subtitle language (e.g. en)")
	f.Float64Var(&sensitivity, "sensitivity", 0, "Recognizer sensitivity in [0,1]")
	f.BoolVar(&continuous, "continuous", true, "Restart recognition after each utterance")
	f.BoolVar(&interim, "interim", true, "Emit interim subtitles")
	f.StringVar(&apiKey, "api-key", "", "API key for the keyed translation service")
	f.StringVar(&model, "model", "", "Model for the keyed translation service")
	f.BoolVar(&enhance, "enhance", true, "Ask the recognizer for punctuation and formatting")
	return cmd
}

func displayCommand(parsed *Parsed) *cobra.Command {
	d := &parsed.Display
	cmd := leaf(parsed, CommandDisplay, "display", "Show or change the overlay display record", cobra.NoArgs)
	run := cmd.RunE
	cmd.RunE = func(c *cobra.Command, args []string) error {
		if err := run(c, args); err != nil {
			return err
		}
		c.LocalNonPersistentFlags().Visit(func(flag *pflag.Flag) {
			parsed.DisplayFields = append(parsed.DisplayFields, flag.Name)
		})
		return nil
	}

	f := cmd.Flags()
	f.StringVar(&d.FontFamily, "font-family", "", "Font family")
	f.IntVar(&d.FontSize, "font-size", 0, "Font size in px")
	f.StringVar(&d.FontWeight, "font-weight", "", "Font weight")
	f.StringVar(&d.FontColor, "font-color", "", "Font color (#rrggbb)")
	f.StringVar(&d.BackgroundColor, "background-color", "", "Background color (#rrggbb)")
	f.IntVar(&d.BackgroundOpacity, "background-opacity", 0, "Background opacity 0..100")
	f.IntVar(&d.BorderRadius, "border-radius", 0, "Border radius in px")
	f.StringVar(&d.Position, "position", "", "top or bottom")
	f.StringVar(&d.HorizontalAlign, "align", "", "left, center, or right")
	f.IntVar(&d.MarginOffset, "margin", 0, "Margin offset in px")
	f.BoolVar(&d.ShowOriginal, "show-original", false, "Show the recognized text above the translation")
	f.BoolVar(&d.AutoHide, "auto-hide", false, "Hide subtitles after a pause")
	f.IntVar(&d.AutoHideSeconds, "auto-hide-seconds", 0, "Seconds before auto-hide")
	f.BoolVar(&d.ShowInterim, "show-interim", false, "Show interim subtitles")
	return cmd
}

func historyCommand(parsed *Parsed) *cobra.Command {
	cmd := leaf(parsed, CommandHistory, "history [SOURCE]", "Print recent final subtitles", cobra.MaximumNArgs(1))
	run := cmd.RunE
	cmd.RunE = func(c *cobra.Command, args []string) error {
		if err := run(c, args); err != nil {
			return err
		}
		if parsed.Limit <= 0 {
			return fmt.Errorf("--limit must be > 0")
		}
		return nil
	}
	cmd.Flags().IntVar(&parsed.Limit, "limit", 20, "Maximum rows")
	return cmd
}
