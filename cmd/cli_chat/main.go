package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"stock-assistant/internal/backend"
	"stock-assistant/internal/config"
	"stock-assistant/internal/domain"
	"stock-assistant/internal/logging"
	"stock-assistant/internal/service"
)

const defaultCLILogFile = "logs/cli_chat.log"

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	// La consola es para el usuario: los logs van siempre a archivo.
	logFile := cfg.LogFile
	if logFile == "" {
		logFile = defaultCLILogFile
	}
	logger, err := logging.New(cfg.LogLevel, logFile)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	policy, err := service.ParseQueuePolicy(cfg.ChatQueuePolicy)
	if err != nil {
		log.Fatal(err)
	}

	client := backend.NewHTTPClient(cfg.APIURL, cfg.RequestTimeout(), logger)
	sessions := service.NewSessionRegistry(client, logger, policy)
	session := sessions.Create()
	defer sessions.CloseAll()

	logger.Info("cli session started", zap.String("session_id", session.ID), zap.String("api_url", cfg.APIURL))
	runMenu(ctx, reader, session)
}

func runMenu(ctx context.Context, reader *bufio.Reader, session *service.Session) {
	dash := session.Dashboard
	for {
		fmt.Println()
		fmt.Println(titleStyle.Render("===== Panel de Stock ====="))
		fmt.Println(renderForm(dash.Snapshot().Form))
		fmt.Println("[1] Producto")
		fmt.Println("[2] Fecha (AAAA-MM-DD)")
		fmt.Println("[3] Utilizar LLM (on/off)")
		fmt.Println("[4] Predecir stock del producto")
		fmt.Println("[5] Prediccion completa por fecha")
		fmt.Println("[6] Productos en riesgo de agotarse")
		fmt.Println("[7] Fecha de agotamiento del producto")
		fmt.Println("[8] Subir CSV / Reentrenar")
		fmt.Println("[9] Chatear")
		fmt.Println("[0] Salir")
		fmt.Print("Selecciona una opcion: ")

		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		switch strings.TrimSpace(line) {
		case "1":
			dash.SetProduct(prompt(reader, "Producto: "))
		case "2":
			dash.SetDate(prompt(reader, "Fecha: "))
		case "3":
			if dash.ToggleAdvanced() {
				fmt.Println("Modo avanzado activado.")
			} else {
				fmt.Println("Modo avanzado desactivado.")
			}
		case "4":
			printState(dash.PredictProductStock(ctx))
		case "5":
			printState(dash.PredictFullDate(ctx))
		case "6":
			printState(dash.AtRiskProducts(ctx))
		case "7":
			printState(dash.PredictDepletion(ctx))
		case "8":
			uploadFlow(ctx, reader, dash)
		case "9":
			if err := chatFlow(ctx, reader, session.Bridge); err != nil {
				fmt.Printf("Error en chat: %v\n", err)
			}
		case "0":
			return
		default:
			fmt.Println("Opcion invalida.")
		}
	}
}

func uploadFlow(ctx context.Context, reader *bufio.Reader, dash *service.Dashboard) {
	path := prompt(reader, "Ruta del CSV (vacio para cancelar): ")
	if path == "" {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		fmt.Printf("No se pudo abrir el archivo: %v\n", err)
		return
	}
	defer f.Close()

	printState(dash.UploadCSV(ctx, &domain.Upload{Filename: filepath.Base(path), Content: f}))
}

func chatFlow(ctx context.Context, reader *bufio.Reader, bridge *service.ChatBridge) error {
	fmt.Println("---- Modo Chat (escribe 'salir' para terminar chat) ----")
	for {
		fmt.Print("Tu > ")
		text, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("leer input: %w", err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if strings.EqualFold(text, "salir") || strings.EqualFold(text, "exit") {
			fmt.Println("Saliendo del chat...")
			return nil
		}

		bridge.Chat(ctx, text)

		played := 0
		for {
			msg, ok := bridge.Message()
			if !ok {
				break
			}
			fmt.Println(renderChatMessage(msg))
			bridge.OnMessagePlayed()
			played++
		}
		if played == 0 {
			fmt.Println(errorStyle.Render("Sin respuesta del asistente, revisa el log."))
		}
	}
}

func printState(state service.DashboardState) {
	if box := renderResult(state); box != "" {
		fmt.Println(box)
	}
	if table := renderTable(state.Predictions); table != "" {
		fmt.Println(table)
	}
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	s, _ := reader.ReadString('\n')
	return strings.TrimSpace(s)
}
