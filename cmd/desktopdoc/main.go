package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ivlev/desktopdoc/internal/api"
	"github.com/ivlev/desktopdoc/internal/config"
	"github.com/ivlev/desktopdoc/internal/logging"
	"github.com/ivlev/desktopdoc/internal/media"
	"github.com/ivlev/desktopdoc/internal/session"
	"github.com/ivlev/desktopdoc/internal/system"
)

func main() {
	configPtr := flag.String("config", "desktopdoc.yaml", "Путь к YAML-конфигу (необязателен)")
	inputPtr := flag.String("input", "", "Папка или файл с медиа (по умолчанию: input_dir из конфига)")
	outputPtr := flag.String("output", "", "Папка для записей")
	resolutionPtr := flag.String("resolution", "", "Разрешение: 1280x720, 1920x1080, 1080x1080, 1080x1920 (или 16:9, 16:9-hd, 1:1, 9:16)")
	crossfadePtr := flag.Float64("crossfade", config.DefaultCrossfade, "Длительность перехода, сек [0..3]")
	imageDurationPtr := flag.Float64("image-duration", 0, "Длительность показа изображения, сек (0 - по умолчанию)")
	titlePtr := flag.String("title", "", "Заголовок поверх всех клипов")
	accentPtr := flag.String("accent", "", "Цвет акцента подписей (#rrggbb)")
	encoderPtr := flag.String("encoder", "", "Энкодер ffmpeg (auto - лучший доступный)")
	qualityPtr := flag.Int("quality", 0, "Качество видео (0 - авто, x264: CRF 1-51, VideoToolbox: битрейт = Q*100кбит/с)")
	workersPtr := flag.Int("workers", 0, "Потоки для загрузки медиа")
	listenPtr := flag.String("listen", "", "Адрес HTTP API")
	servePtr := flag.Bool("serve", false, "Вместе с -record: после записи оставить HTTP API (без -record API запускается всегда)")
	recordPtr := flag.Bool("record", false, "Записать один полный проход и выйти")
	verbosePtr := flag.Bool("verbose", false, "Подробные логи")

	flag.Parse()

	cfg, err := config.Load(*configPtr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[-] Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "input":
			cfg.InputDir = *inputPtr
		case "output":
			cfg.OutputDir = *outputPtr
		case "resolution":
			cfg.Resolution = *resolutionPtr
		case "crossfade":
			cfg.Crossfade = *crossfadePtr
		case "title":
			cfg.Title = *titlePtr
		case "accent":
			cfg.AccentColor = *accentPtr
		case "encoder":
			cfg.VideoEncoder = *encoderPtr
		case "quality":
			cfg.Quality = *qualityPtr
		case "workers":
			cfg.Workers = *workersPtr
		case "listen":
			cfg.ListenAddr = *listenPtr
		case "verbose":
			cfg.Verbose = *verbosePtr
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "[-] Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	logging.Init(cfg.Verbose)

	// Every video clip holds an ffmpeg process with open pipes.
	if limit, err := system.InitResourceLimits(); err != nil {
		log.Warn().Err(err).Msg("could not raise open file limit")
	} else {
		log.Debug().Uint64("nofile", limit).Msg("resource limits")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := session.New(session.Options{
		Config: cfg,
		Logger: logging.WithComponent("session"),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("session init failed")
	}
	defer sess.Close()

	res, _ := config.ParseResolution(cfg.Resolution)
	fmt.Println("--- [DESKTOP DOC] ---")
	fmt.Printf("[*] Разрешение: %dx%d | Переход: %.2fs | Запись: %d FPS\n", res.Width, res.Height, cfg.Crossfade, cfg.CaptureFPS)

	if err := loadInput(ctx, sess, cfg.InputDir, *imageDurationPtr); err != nil {
		fmt.Printf("[!] %v\n", err)
		if *recordPtr {
			os.Exit(1)
		}
	}

	if *recordPtr {
		if err := record(ctx, sess); err != nil {
			log.Fatal().Err(err).Msg("recording failed")
		}
	}
	if !shouldServe(*recordPtr, *servePtr) {
		return
	}

	if err := serve(ctx, sess, cfg.ListenAddr); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

// shouldServe reports whether the control API runs. It always does, except
// after a headless -record pass without -serve.
func shouldServe(record, serve bool) bool {
	return !record || serve
}

// loadInput ingests every media file under path and places it on the
// timeline in name order.
func loadInput(ctx context.Context, sess *session.Session, path string, imageDuration float64) error {
	paths, err := system.ScanMedia(path, media.IsMediaFile)
	if err != nil {
		return fmt.Errorf("нет входных файлов: %w", err)
	}

	start := time.Now()
	items, errs := sess.Ingest(ctx, paths)
	for _, err := range errs {
		fmt.Printf("[!] Пропущен: %v\n", err)
	}

	for _, item := range items {
		e, err := sess.Place(item.ID)
		if err != nil {
			return err
		}
		if imageDuration > 0 && item.Kind == media.KindImage {
			if _, err := sess.SetImageDuration(e.ID, imageDuration); err != nil {
				return err
			}
		}
	}

	st := sess.State()
	fmt.Printf("[*] Загружено: %d клипов, %.2fs за %v\n", len(st.Entries), st.Total, time.Since(start).Round(time.Millisecond))
	return nil
}

func record(ctx context.Context, sess *session.Session) error {
	if sess.State().Total <= 0 {
		return errors.New("таймлайн пуст")
	}
	if err := sess.StartRecording(); err != nil {
		return err
	}
	fmt.Println("[*] Запись...")

	waitErr := sess.WaitStopped(ctx)
	art, err := sess.StopRecording()
	if err != nil {
		return err
	}
	if waitErr != nil {
		fmt.Printf("[!] Запись прервана: %v\n", waitErr)
	}
	if art == nil {
		return errors.New("запись не создана")
	}

	fmt.Printf("[+++] Готово: %s (%.1f MB, %d кадров)\n", art.Path, float64(art.Size)/1024/1024, art.Frames)
	if art.Partial {
		fmt.Println("[!] Запись неполная: энкодер завершился с ошибкой")
	}
	return nil
}

func serve(ctx context.Context, sess *session.Session, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: api.NewRouter(sess, logging.WithComponent("api")),
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("http://%s/api/state", controlHost(ln.Addr()))
	fmt.Printf("[*] API управления: %s\n", url)
	if qr, err := api.ControlQR(url); err == nil {
		fmt.Println(qr)
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	fmt.Println("[*] Остановка...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// controlHost swaps a wildcard listen address for a LAN address a phone can
// reach.
func controlHost(addr net.Addr) string {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok || !tcp.IP.IsUnspecified() {
		return addr.String()
	}
	ifaces, err := net.InterfaceAddrs()
	if err != nil {
		return addr.String()
	}
	for _, a := range ifaces {
		if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			return fmt.Sprintf("%s:%d", ipnet.IP, tcp.Port)
		}
	}
	return addr.String()
}
