package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/joseph-ayodele/control-mapper/constants"
)

var (
	colorPrimary = lipgloss.Color("99")
	colorMuted   = lipgloss.Color("245")
	colorSuccess = lipgloss.Color("82")
	colorWarning = lipgloss.Color("214")
	colorError   = lipgloss.Color("196")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	labelStyle = lipgloss.NewStyle().Foreground(colorMuted)
	headerCell = lipgloss.NewStyle().Bold(true).Foreground(colorPrimary).Padding(0, 1)
	cellStyle  = lipgloss.NewStyle().Padding(0, 1)
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(colorError)
)

func jobStatusStyle(s constants.JobStatus) lipgloss.Style {
	switch s {
	case constants.JobStatusCompleted:
		return lipgloss.NewStyle().Foreground(colorSuccess)
	case constants.JobStatusFailed:
		return lipgloss.NewStyle().Foreground(colorError)
	case constants.JobStatusRunning:
		return lipgloss.NewStyle().Foreground(colorWarning)
	default:
		return lipgloss.NewStyle().Foreground(colorMuted)
	}
}

func batchStatusStyle(s constants.BatchStatus) lipgloss.Style {
	switch s {
	case constants.BatchStatusCompleted:
		return lipgloss.NewStyle().Bold(true).Foreground(colorSuccess)
	case constants.BatchStatusFailed:
		return lipgloss.NewStyle().Bold(true).Foreground(colorError)
	case constants.BatchStatusPartial, constants.BatchStatusRunning:
		return lipgloss.NewStyle().Bold(true).Foreground(colorWarning)
	default:
		return lipgloss.NewStyle().Bold(true).Foreground(colorMuted)
	}
}
