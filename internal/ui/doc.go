// Package ui implements interactive terminal views using bubbletea's Elm architecture.
//
// Two models are provided:
//  1. [PickerModel] : Multi-select list over schedule or watchlist entries,
//     used by the interactive watchlist commands
//  2. [CycleModel] : Live progress of a processing cycle, fed by the
//     CycleEngine's progress channel
//
// Both implement bubbletea's standard Init/Update/View pattern. Progress
// updates flow through a channel, providing non-blocking status reporting
// while episodes download.
//
// Keyboard navigation uses vim-style bindings (j/k, space, enter, q) with
// contextual help displayed via charmbracelet/bubbles/help.
package ui
