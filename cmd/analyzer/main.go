package main

import (
	"embed"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"
	"time"
	_ "time/tzdata" // Windows 无系统时区数据库

	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/websocket"

	"scte104-analyzer/internal/config"
	"scte104-analyzer/internal/handlers"
	"scte104-analyzer/internal/report"
	"scte104-analyzer/internal/scte104"
	"scte104-analyzer/internal/server"
)

//go:embed static/*
var staticFS embed.FS

func main() {
	configPath := flag.String("config", config.DefaultConfigPath, "Config file path")
	port := flag.Int("port", 0, "Server port (overrides config)")
	recording := flag.String("mxf", "", "MXF recording to analyze on startup (optional, can be set via web UI)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	noBrowser := flag.Bool("no-browser", false, "Don't open browser automatically")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("配置加载失败: %v\n", err)
		os.Exit(1)
	}

	// 设置日志级别
	if *debug || cfg.Logging.Debug {
		scte104.SetDebugMode(true)
	}

	// 扫描缓存目录
	report.SetCacheDir(cfg.Analysis.CacheDir)

	listenPort := cfg.Server.Port
	if *port > 0 {
		listenPort = *port
	}

	// 查找可用端口
	actualPort := findAvailablePort(listenPort)

	fmt.Println("============================================================")
	fmt.Println("SCTE-104 录像分析查看器")
	fmt.Println("============================================================")
	if *recording != "" {
		fmt.Printf("启动分析: %s\n", *recording)
	}
	fmt.Printf("结果目录: %s\n", cfg.Analysis.ResultsDir)
	fmt.Printf("监听地址: http://localhost:%d\n", actualPort)
	fmt.Println("============================================================")

	// 创建分析服务
	analyzer := server.NewAnalyzerServer(cfg.Analysis)
	defer analyzer.Close()

	// 创建 Iris 应用
	app := iris.New()
	app.Logger().SetLevel("warn")

	// CORS
	app.UseRouter(func(ctx iris.Context) {
		ctx.Header("Access-Control-Allow-Origin", "*")
		ctx.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		ctx.Header("Access-Control-Allow-Headers", "Content-Type")
		if ctx.Method() == "OPTIONS" {
			ctx.StatusCode(204)
			return
		}
		ctx.Next()
	})

	// 注册 API 路由
	api := server.NewHandlers(analyzer, cfg.Phabrix)
	server.RegisterRoutes(app, api)

	// WebSocket 帧回放
	replay := handlers.NewReplayHandler(api)
	wsServer := websocket.New(websocket.DefaultGorillaUpgrader, replay.RegisterEvents())
	app.Get("/ws/replay", websocket.Handler(wsServer))

	// 嵌入的静态文件
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		fmt.Printf("警告: 无法加载嵌入的静态文件: %v\n", err)
	} else {
		app.HandleDir("/", http.FS(staticSub), iris.DirOptions{
			IndexName: "index.html",
			SPA:       true,
		})
		fmt.Println("静态文件: 嵌入模式")
	}

	// 优雅关闭
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		fmt.Println("\n正在关闭...")
		app.Shutdown(nil)
	}()

	// 启动时分析指定录像
	if *recording != "" {
		go func() {
			if err := analyzer.Analyze(*recording); err != nil {
				fmt.Printf("[Analyzer] 启动分析失败: %v\n", err)
			}
		}()
	}

	// 自动打开浏览器
	if !*noBrowser {
		go func() {
			time.Sleep(500 * time.Millisecond)
			openBrowser(fmt.Sprintf("http://localhost:%d", actualPort))
		}()
	}

	// 启动服务器
	fmt.Printf("\n服务器已启动: http://localhost:%d\n", actualPort)
	if err := app.Listen(fmt.Sprintf("%s:%d", cfg.Server.Host, actualPort)); err != nil {
		fmt.Printf("服务器错误: %v\n", err)
	}
}

// findAvailablePort 查找可用端口，如果指定端口被占用则递增
func findAvailablePort(startPort int) int {
	for port := startPort; port < startPort+100; port++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			ln.Close()
			return port
		}
	}
	return startPort // 回退到原始端口
}

// openBrowser 打开默认浏览器
func openBrowser(url string) {
	var err error
	switch runtime.GOOS {
	case "darwin":
		err = exec.Command("open", url).Start()
	case "linux":
		err = exec.Command("xdg-open", url).Start()
	case "windows":
		err = exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	}
	if err != nil {
		fmt.Printf("无法自动打开浏览器，请手动访问: %s\n", url)
	}
}
