package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/config"
	"github.com/fwojciec/relay/markdown"
	"github.com/fwojciec/relay/transcript"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flagKeys maps config keys to the chat flags that override them.
var flagKeys = map[string]string{
	"provider":       "provider",
	"model":          "model",
	"base_url":       "base-url",
	"api_key":        "api-key",
	"system_prompt":  "system-prompt",
	"max_tokens":     "max-tokens",
	"header_timeout": "header-timeout",
	"log_level":      "log-level",
	"render":         "render",
}

func newChatCmd() *cobra.Command {
	v := config.New()

	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: "Send one prompt and stream the reply",
		Long: "Send one prompt and stream the reply. Arguments are joined into the prompt; " +
			"without arguments the prompt is read from standard input.",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Temperature has no meaningful flag default, so it is only
			// set when given.
			if cmd.Flags().Changed("temperature") {
				t, err := cmd.Flags().GetFloat64("temperature")
				if err != nil {
					return err
				}
				v.Set("temperature", t)
			}
			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			cfg, err := config.LoadFrom(v, path)
			if err != nil {
				return err
			}
			logger, err := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)
			if err != nil {
				return err
			}

			prompt, err := readPrompt(args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			pc, err := resolveConfig(cfg.Provider, cfg.APIKey, cfg.Keys)
			if err != nil {
				return err
			}
			provider := newProvider(pc, cfg.BaseURL, newHTTPClient(cfg.HeaderTimeout), logger)

			sessionPath, err := cmd.Flags().GetString("session")
			if err != nil {
				return err
			}
			tr, err := loadSession(sessionPath, pc.name, cfg)
			if err != nil {
				return err
			}

			user := relay.UserText(prompt)
			req := relay.Request{
				Model:        cfg.Model,
				SystemPrompt: tr.SystemPrompt,
				Messages:     append(slices.Clone(tr.Messages), user),
				MaxTokens:    cfg.MaxTokens,
				Temperature:  cfg.Temperature,
			}
			theme := markdown.DefaultTheme()
			msg, err := streamTurn(cmd.Context(), cmd.OutOrStdout(), provider, req, printOptions{
				theme:  theme,
				render: cfg.Render,
			})
			if err != nil {
				return err
			}
			if sessionPath != "" {
				tr.Append(user, msg)
				if err := transcript.Save(sessionPath, tr); err != nil {
					return err
				}
				total := tr.Usage()
				logger.Debug().
					Str("path", sessionPath).
					Int("messages", len(tr.Messages)).
					Int("session_input_tokens", total.TotalInput()).
					Int("session_output_tokens", total.OutputTokens).
					Msg("session saved")
			}
			logger.Info().
				Int("input_tokens", msg.Usage.TotalInput()).
				Int("output_tokens", msg.Usage.OutputTokens).
				Int("cache_read_tokens", msg.Usage.CacheReadTokens).
				Str("stop_reason", string(msg.StopReason)).
				Msg("turn complete")
			if note := stopNote(msg); note != "" {
				fmt.Fprintln(cmd.ErrOrStderr(), theme.ErrorStyle().Render(note))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.String("provider", "", "provider: openai, anthropic, gemini (detected from API key variables if omitted)")
	f.String("model", "", "model ID (default: provider default)")
	f.String("base-url", "", "API base URL (default: provider default)")
	f.String("api-key", "", "API key (overrides the provider's key variable)")
	f.String("system-prompt", "", "system prompt")
	f.Int("max-tokens", 0, "maximum output tokens (0: provider default)")
	f.Float64("temperature", 0, "sampling temperature (default: provider default)")
	f.Duration("header-timeout", 60*time.Second, "maximum wait for response headers")
	f.String("log-level", "warn", "log level: debug, info, warn, error")
	f.Bool("render", false, "render the reply as markdown once it is complete")
	f.String("session", "", "transcript file to continue and update")
	if err := bindFlags(v, cmd, flagKeys); err != nil {
		panic(err)
	}
	return cmd
}

// bindFlags binds each config key to the named flag of cmd.
func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) error {
	for key, name := range keys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("bind %s to --%s: %w", key, name, err)
		}
	}
	return nil
}

// loadSession returns the transcript at path, or a new one when path is
// empty or does not exist yet. A configured system prompt replaces the
// saved one.
func loadSession(path, provider string, cfg *config.Config) (transcript.Transcript, error) {
	if path == "" {
		return transcript.New(provider, cfg.Model, cfg.SystemPrompt), nil
	}
	tr, err := transcript.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return transcript.New(provider, cfg.Model, cfg.SystemPrompt), nil
	}
	if err != nil {
		return transcript.Transcript{}, err
	}
	if cfg.SystemPrompt != "" {
		tr.SystemPrompt = cfg.SystemPrompt
	}
	return tr, nil
}

func readPrompt(args []string, stdin io.Reader) (string, error) {
	prompt := strings.Join(args, " ")
	if len(args) == 0 {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read prompt: %w", err)
		}
		prompt = string(data)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("empty prompt")
	}
	return prompt, nil
}

// stopNote describes stop reasons the user should know about.
func stopNote(msg relay.AssistantMessage) string {
	switch msg.StopReason {
	case relay.StopLength:
		return "reply truncated: output token limit reached"
	case relay.StopError:
		return fmt.Sprintf("reply stopped by the provider (%s)", msg.RawStopReason)
	case relay.StopToolUse:
		if n := len(msg.ToolCalls()); n > 1 {
			return fmt.Sprintf("reply ended with %d tool calls", n)
		}
		return "reply ended with a tool call"
	default:
		return ""
	}
}

type printOptions struct {
	theme  markdown.Theme
	render bool
	width  int
}

// streamTurn streams one reply to out as it arrives and returns the
// assembled message. With render set, text is held back and printed as
// styled markdown at the end.
func streamTurn(ctx context.Context, out io.Writer, p relay.Provider, req relay.Request, opts printOptions) (relay.AssistantMessage, error) {
	coll, err := p.Stream(req)
	if err != nil {
		return relay.AssistantMessage{}, err
	}
	defer coll.Close()

	pr := newPrinter(out, opts)
	var acc relay.Accumulator
	cur := coll.Cursor()
	for {
		u, err := cur.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			pr.endLine()
			return acc.Message(), err
		}
		acc.Apply(u)
		pr.update(u)
	}

	msg := acc.Message()
	msg.Timestamp = time.Now()
	pr.endLine()
	if opts.render {
		if text := msg.Text(); text != "" {
			pr.separate()
			pr.write(markdown.New(opts.theme).Render(sanitize(text), opts.width) + "\n")
		}
	}
	return msg, nil
}

type section int

const (
	sectionNone section = iota
	sectionText
	sectionThinking
	sectionTool
)

// printer writes updates as they arrive, separating runs of text,
// thinking and tool calls by a blank line.
type printer struct {
	out      io.Writer
	render   bool
	thinking lipgloss.Style
	tool     lipgloss.Style
	args     lipgloss.Style
	current  section
	midLine  bool
}

func newPrinter(out io.Writer, opts printOptions) *printer {
	return &printer{
		out:      out,
		render:   opts.render,
		thinking: opts.theme.ThinkingStyle(),
		tool:     opts.theme.ToolCallStyle(),
		args:     lipgloss.NewStyle().Faint(true),
	}
}

func (p *printer) update(u relay.Update) {
	switch u := u.(type) {
	case relay.UpdateTextDelta:
		if p.render {
			return
		}
		p.enter(sectionText)
		p.write(sanitize(u.Delta))
	case relay.UpdateThinkingDelta:
		p.enter(sectionThinking)
		p.write(styleLines(p.thinking, sanitize(u.Delta)))
	case relay.UpdateToolCallBegin:
		p.separate()
		p.current = sectionTool
		p.write(p.tool.Render("▸ "+sanitize(u.Name)) + "\n")
	case relay.UpdateToolCallDelta:
		p.enter(sectionTool)
		p.write(styleLines(p.args, sanitize(u.Delta)))
	case relay.UpdateToolCallEnd:
		p.endLine()
	}
}

func (p *printer) enter(s section) {
	if p.current == s {
		return
	}
	p.separate()
	p.current = s
}

func (p *printer) separate() {
	if p.current == sectionNone {
		return
	}
	p.endLine()
	p.write("\n")
}

// endLine terminates a partly written line.
func (p *printer) endLine() {
	if p.midLine {
		p.write("\n")
	}
}

func (p *printer) write(s string) {
	if s == "" {
		return
	}
	io.WriteString(p.out, s)
	p.midLine = !strings.HasSuffix(s, "\n")
}

// styleLines styles each line of s separately, so that a delta spanning
// lines is not padded into a block.
func styleLines(style lipgloss.Style, s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = style.Render(l)
		}
	}
	return strings.Join(lines, "\n")
}
