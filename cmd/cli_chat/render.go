package main

import (
	"strings"

	"charm.land/lipgloss/v2"

	"stock-assistant/internal/domain"
	"stock-assistant/internal/service"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#0f2c63")).
			Bold(true)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#ffb703")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Underline(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("141"))
)

const (
	colProduct = "Producto"
	colStock   = "Stock Predicho"
)

func renderForm(form service.DashboardForm) string {
	llm := "off"
	if form.Advanced {
		llm = "on"
	}
	product := form.Product
	if product == "" {
		product = "-"
	}
	date := form.Date
	if date == "" {
		date = "-"
	}
	return "Producto: " + product + " | Fecha: " + date + " | Utilizar LLM: " + llm
}

// renderResult dibuja la caja de resultados. Vacia si no hay nada que mostrar.
func renderResult(state service.DashboardState) string {
	var lines []string
	if state.Loading {
		lines = append(lines, "Procesando...")
	} else if state.Response != "" {
		lines = append(lines, state.Response)
	}
	if state.Error != "" {
		lines = append(lines, errorStyle.Render(state.Error))
	}
	if len(lines) == 0 {
		return ""
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func renderTable(rows []domain.PredictionRow) string {
	if len(rows) == 0 {
		return ""
	}
	width := lipgloss.Width(colProduct)
	for _, r := range rows {
		if w := lipgloss.Width(r.ProductName); w > width {
			width = w
		}
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Lista de predicciones"))
	sb.WriteString("\n")
	sb.WriteString(headerStyle.Render(pad(colProduct, width)))
	sb.WriteString("  ")
	sb.WriteString(headerStyle.Render(colStock))
	for _, r := range rows {
		sb.WriteString("\n")
		sb.WriteString(pad(r.ProductName, width))
		sb.WriteString("  ")
		stock := r.StockText()
		if stock == "" {
			stock = "-"
		}
		sb.WriteString(stock)
	}
	return sb.String()
}

func renderChatMessage(msg domain.ChatMessage) string {
	return assistantStyle.Render("Asistente > ") + msg.Text
}

func pad(s string, width int) string {
	if gap := width - lipgloss.Width(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}
