package flasher

import (
	"fmt"
	"strings"

	"qflasher/internal/adapter/tui/theme"
	"qflasher/internal/adapter/tui/uxerror"
	"qflasher/internal/domain"
)

func (m *Model) screen() string {
	switch m.snap.State.Kind {
	case domain.StateAwaitingJumper:
		return m.jumperScreen()
	case domain.StateAwaitingDevice:
		return m.waitingScreen()
	case domain.StateInProgress:
		return m.flashingScreen()
	case domain.StateComplete:
		return m.completeScreen()
	case domain.StateFailed:
		return m.errorScreen()
	default:
		return m.welcomeScreen()
	}
}

func (m *Model) welcomeScreen() string {
	latest := theme.TextMuted.Render("checking" + theme.Sym.Ellipsis)
	if m.snap.LatestVersion != "" {
		latest = theme.TextAccent.Render(m.snap.LatestVersion)
	}
	lines := []string{
		theme.Title.Render("Arduino UNO Q"),
		theme.Subtitle.Render("Recovery & Flash Tool"),
		"",
		"This tool will flash the latest Debian image to your Arduino UNO Q board.",
		"",
		theme.Bold.Render("Latest version: ") + latest,
	}
	if v := m.snap.TargetVersion; v != "" && v != "latest" {
		lines = append(lines, theme.Bold.Render("Flashing version: ")+theme.TextAccent.Render(v))
	}
	lines = append(lines, theme.TextMuted.Render(fmt.Sprintf("Requires ~%d GB free disk space", domain.RequiredDiskSpace/1_000_000_000)))
	return strings.Join(lines, "\n")
}

func (m *Model) jumperScreen() string {
	step := func(n int, text string, highlight bool) string {
		num := theme.InstructionNumber.Render(fmt.Sprintf("%d.", n))
		if highlight {
			text = theme.InstructionHighlight.Render(text)
		}
		return "  " + num + " " + text
	}
	return strings.Join([]string{
		theme.Title.Render("Prepare Your Board"),
		step(1, "Disconnect power from your board", false),
		step(2, "Short the 2 highlighted JCTL pins with a jumper", true),
		step(3, "Connect the board via USB to this computer", false),
		theme.Callout.Render(theme.Sym.Warning + " Keep jumper connected until flashing completes!"),
	}, "\n")
}

func (m *Model) waitingScreen() string {
	status := m.spinner.View() + " Looking for a Qualcomm EDL device" + theme.Sym.Ellipsis
	if m.snap.DevicePresent {
		status = theme.TextSuccess.Render(theme.Sym.Success + " Device detected")
	}
	return strings.Join([]string{
		theme.Title.Render("Waiting for Device"),
		"Connect your Arduino UNO Q in EDL mode",
		"",
		status,
		"",
		theme.TextMuted.Render("Make sure the jumper is connected before plugging in USB"),
	}, "\n")
}

func (m *Model) flashingScreen() string {
	st := m.snap.State
	msg := st.Message
	if msg == "" {
		msg = st.Step.Title() + theme.Sym.Ellipsis
	}

	var safety string
	if m.snap.CancellationSafe {
		safety = theme.TextSuccess.Render(theme.Sym.Success + " Safe to cancel")
	} else {
		safety = theme.TextWarning.Render(theme.Sym.Warning + " Do not disconnect!")
	}

	return strings.Join([]string{
		m.steps.View(),
		"",
		m.progress.ViewAs(st.Percent),
		"",
		m.spinner.View() + " " + msg,
		"",
		safety,
	}, "\n")
}

func (m *Model) completeScreen() string {
	next := func(text string) string { return "  " + theme.Sym.ArrowR + " " + text }
	return strings.Join([]string{
		theme.TextSuccess.Render(theme.Sym.Success + " Flash Complete!"),
		"Your Arduino UNO Q is ready to use",
		"",
		m.progress.ViewAs(1.0),
		"",
		theme.Bold.Render("Next steps"),
		next("Remove the jumper wire from JCTL"),
		next("Disconnect and reconnect USB"),
		next("Your board will boot into Debian Linux"),
	}, "\n")
}

func (m *Model) errorScreen() string {
	fe := uxerror.HumanizeMessage(m.snap.State.Message)
	lines := []string{
		theme.TextError.Render(theme.Sym.Error + " " + fe.Title),
		fe.Message,
	}
	if len(fe.Hints) > 0 {
		lines = append(lines, "")
		for _, h := range fe.Hints {
			lines = append(lines, "  "+theme.Sym.Bullet+" "+h)
		}
	}
	lines = append(lines, "", theme.Bold.Render("Error Details"), theme.ErrorDetails.Render(fe.Raw))
	return strings.Join(lines, "\n")
}
