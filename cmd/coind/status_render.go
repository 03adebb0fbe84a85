package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"coind/internal/ipc"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 16
	statusIndent     = "  "
)

var titleCaser = cases.Title(language.English)

func renderStatus(status *ipc.StatusResponse, now time.Time, colorize bool) string {
	var b strings.Builder
	writeLines := func(lines ...string) {
		for _, line := range lines {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	writeLines(renderSectionHeader("Node", colorize)...)
	nodeKind, nodeMessage := statusOK, "running"
	if status.ShutdownRequested {
		nodeKind, nodeMessage = statusWarn, "shutting down"
	}
	writeLines(
		renderStatusLine("State", nodeKind, nodeMessage, colorize),
		renderStatusLine("PID", statusInfo, strconv.Itoa(status.PID), colorize),
		renderStatusLine("Network", statusInfo, titleCaser.String(status.Network), colorize),
		renderStatusLine("Data dir", statusInfo, status.DataDir, colorize),
		renderStatusLine("Uptime", statusInfo, formatUptime(status.StartedAt, now), colorize),
		renderStatusLine("Run", statusInfo, status.RunID, colorize),
	)

	b.WriteByte('\n')
	writeLines(renderSectionHeader("Chain", colorize)...)
	writeLines(
		renderStatusLine("Height", statusInfo, strconv.FormatInt(status.Height, 10), colorize),
		renderStatusLine("Tip", statusInfo, shortHash(status.Tip), colorize),
	)

	b.WriteByte('\n')
	writeLines(renderSectionHeader("Network", colorize)...)
	listenKind, listenMessage := statusInfo, "disabled"
	if len(status.Listeners) > 0 {
		listenKind, listenMessage = statusOK, strings.Join(status.Listeners, ", ")
	}
	writeLines(
		renderStatusLine("Listening", listenKind, listenMessage, colorize),
		renderStatusLine("Inbound", statusInfo, strconv.FormatInt(status.InboundPeers, 10), colorize),
		renderStatusLine("Outbound", statusInfo, strconv.Itoa(len(status.OutboundPeers)), colorize),
	)

	b.WriteByte('\n')
	writeLines(renderSectionHeader("Wallet", colorize)...)
	if status.Wallet.Enabled {
		writeLines(
			renderStatusLine("Key store", statusOK, status.Wallet.Path, colorize),
			renderStatusLine("Keys", statusInfo, fmt.Sprintf("%d (%d in pool)", status.Wallet.Keys, status.Wallet.PoolSize), colorize),
			renderStatusLine("Transactions", statusInfo, strconv.Itoa(status.Wallet.Transactions), colorize),
			renderStatusLine("Balance", statusInfo, strconv.FormatInt(status.Wallet.Balance, 10), colorize),
		)
	} else {
		writeLines(renderStatusLine("Key store", statusInfo, "disabled", colorize))
	}
	stakingKind, stakingMessage := statusInfo, "off"
	if status.Staking {
		stakingKind, stakingMessage = statusOK, fmt.Sprintf("%d attempts", status.StakeAttempts)
	}
	writeLines(renderStatusLine("Staking", stakingKind, stakingMessage, colorize))
	if status.Masternode {
		writeLines(renderStatusLine("Masternode", statusOK, fmt.Sprintf("%d pings", status.MasternodePings), colorize))
	}
	if status.MixingEntries > 0 {
		writeLines(renderStatusLine("Mixing", statusInfo, fmt.Sprintf("%d queued", status.MixingEntries), colorize))
	}

	if len(status.Workers) > 0 {
		b.WriteByte('\n')
		writeLines(renderSectionHeader("Workers", colorize)...)
		writeLines(statusIndent + strings.Join(status.Workers, ", "))
	}

	if len(status.Steps) > 0 {
		b.WriteByte('\n')
		writeLines(renderSectionHeader("Startup", colorize)...)
		writeLines(renderStepTable(status.Steps, colorize))
	}
	return b.String()
}

// stepDetailWidth wraps long step errors so the table fits a terminal.
const stepDetailWidth = 60

func renderStepTable(steps []ipc.StepStatus, colorize bool) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Step", "Outcome", "Elapsed", "Detail"})

	var total time.Duration
	for _, step := range steps {
		elapsed := time.Duration(step.ElapsedMS) * time.Millisecond
		total += elapsed
		outcome := titleCaser.String(step.Outcome)
		if colorize {
			if color := statusKindColor(stepOutcomeKind(step.Outcome)); color != "" {
				outcome = color + outcome + ansiReset
			}
		}
		tw.AppendRow(table.Row{step.Name, outcome, elapsed.String(), step.Error})
	}
	tw.AppendFooter(table.Row{"Total", "", total.String(), ""})

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight, AlignFooter: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, WidthMax: stepDetailWidth, WidthMaxEnforcer: text.WrapSoft},
	})
	return tw.Render()
}

func stepOutcomeKind(outcome string) statusKind {
	switch outcome {
	case "ok":
		return statusOK
	case "warning":
		return statusWarn
	case "fatal":
		return statusError
	default:
		return statusInfo
	}
}

func formatUptime(startedAt, now time.Time) string {
	if startedAt.IsZero() {
		return "unknown"
	}
	return now.Sub(startedAt).Truncate(time.Second).String()
}

func shortHash(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:8] + "…" + hash[len(hash)-8:]
}

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	statusText := fmt.Sprintf("[%s]", statusKindLabel(kind))
	if message != "" {
		statusText += " " + message
	}
	base := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize {
		if color := statusKindColor(kind); color != "" {
			return color + base + ansiReset
		}
	}
	return base
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	case statusInfo:
		return ansiBlue
	default:
		return ""
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
