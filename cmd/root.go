package cmd

import (
	"context"
	"fmt"
	"math/rand/v2"
	u "net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hayate-dl/hayate/internal/download"
	"github.com/hayate-dl/hayate/internal/output"
	"github.com/hayate-dl/hayate/internal/utils"
)

var (
	outputPath    string
	connections   int
	timeout       time.Duration
	kaTimeout     time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	headers       []string
	mirrorFile    string
	logFile       string
	debug         bool
)

var HayateVersion = "dev"

var rootCmd = &cobra.Command{
	Use:     "hayate [URL]",
	Short:   "Hayate is a resumable multi-connection download manager",
	Version: HayateVersion,
	Args:    cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		utils.InitLogger(debug)
		if logFile != "" {
			f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				fail("Unable to open log file")
			}
			defer f.Close()
			utils.SetLogOutput(f)
		}
		log := utils.GetLogger("cli").With().Str("session", uuid.NewString()).Logger()

		if len(args) == 0 && mirrorFile == "" {
			fail("No URL or mirror list provided")
		}
		if len(args) > 0 && mirrorFile != "" {
			fail("Cannot specify a URL argument and --mirror-list together, choose one")
		}
		var mirrors []string
		if len(args) > 0 {
			if !validDownloadURL(args[0]) {
				fail("The given argument is not a valid URL")
			}
			mirrors = []string{args[0]}
		} else {
			var err error
			mirrors, err = readMirrorList(mirrorFile)
			if err != nil {
				log.Debug().Err(err).Msg("Mirror list rejected")
				fail("Failed reading given mirror list file")
			}
		}

		if userAgent == "randomize" {
			userAgent = utils.GetRandomUserAgent()
		}
		// Pull auth out of the proxy URL if it was embedded there
		parsedProxy, err := u.Parse(proxyURL)
		if err == nil && parsedProxy.User != nil && proxyUsername == "" {
			proxyUsername = parsedProxy.User.Username()
			if password, set := parsedProxy.User.Password(); set {
				proxyPassword = password
			}
			parsedProxy.User = nil
			proxyURL = parsedProxy.String()
		}
		client := utils.NewHayateHTTPClient(utils.HTTPClientConfig{
			Timeout:       timeout,
			KATimeout:     kaTimeout,
			ProxyURL:      proxyURL,
			ProxyUsername: proxyUsername,
			ProxyPassword: proxyPassword,
			UserAgent:     userAgent,
			Headers:       utils.ParseHeaderArgs(headers),
		})

		ctx := context.Background()
		info, err := download.Probe(ctx, mirrors[0], client)
		if err != nil {
			log.Debug().Err(err).Msg("HEAD probe failed")
			fail("There was an error while sending a HTTP HEAD request to the server")
		}
		if !info.RangeSupport {
			if connections > 1 {
				log.Debug().Err(utils.ErrRangeRequestsNotSupported).Msg("Multi-connection refused")
				fail("The server does not support byte-range requests")
			}
			output.PrintWarning("Server does not advertise range support; proceeding anyway")
		}
		if outputPath == "" {
			outputPath = outputNameFor(mirrors[0], info)
		}

		store := download.NewStore(outputPath)
		if _, err := store.DiscardEmpty(); err != nil {
			log.Debug().Err(err).Msg("Stale metadata cleanup failed")
			fail("Unable to remove stale metadata file")
		}

		log.Info().Str("output", outputPath).Str("size", utils.FormatBytes(uint64(info.Size))).Int("connections", connections).Msg("Downloading...")
		barWidth := min(40, output.GetTerminalWidth()-12)
		startTime := time.Now()
		err = download.Run(ctx, download.Config{
			OutputPath:  outputPath,
			FileSize:    info.Size,
			Connections: connections,
			PickURL: func() string {
				return mirrors[rand.IntN(len(mirrors))]
			},
			Client: client,
			ProgressFunc: func(downloaded, total int64) {
				fmt.Printf("\r%s", output.PrintProgressBar(downloaded, total, barWidth))
			},
		})
		fmt.Println()
		if err != nil {
			fail(err.Error())
		}
		output.PrintSuccess("Download succeeded")
		elapsed := time.Since(startTime).Seconds()
		output.PrintInfo(fmt.Sprintf("%s in %.1fs (%s)", utils.FormatBytes(uint64(info.Size)), elapsed, utils.FormatSpeed(info.Size, elapsed)))
	},
}

// fail prints the cause and the fixed failure line to stderr, then exits
// non-zero.
func fail(cause string) {
	fmt.Fprintln(os.Stderr, cause)
	fmt.Fprintln(os.Stderr, "Download failed")
	os.Exit(1)
}

func validDownloadURL(link string) bool {
	parsed, err := u.Parse(link)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

// outputNameFor resolves the target filename, preferring the server's
// Content-Disposition suggestion over the last URL path segment.
func outputNameFor(link string, info download.FileInfo) string {
	if info.Name != "" {
		return info.Name
	}
	parsed, err := u.Parse(link)
	if err == nil {
		if name := path.Base(parsed.Path); name != "" && name != "." && name != "/" {
			return name
		}
	}
	last := link[strings.LastIndex(link, "/")+1:]
	if last == "" {
		return "download"
	}
	return last
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (inferred from the URL if not provided)")
	rootCmd.Flags().StringVarP(&mirrorFile, "mirror-list", "l", "", "Path to YAML file listing mirror URLs for the same resource")
	rootCmd.Flags().IntVarP(&connections, "connections", "c", 1, "Number of concurrent connections")
	rootCmd.Flags().DurationVarP(&timeout, "timeout", "t", 3*time.Minute, "Connection timeout (eg. 5s, 10m)")
	rootCmd.Flags().DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	rootCmd.Flags().StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent ('randomize' picks a browser one)")
	rootCmd.Flags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.Flags().StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.Flags().StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.Flags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	rootCmd.Flags().StringVar(&logFile, "log-file", "", "Write logs to a file instead of stderr")
	rootCmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newCleanCmd())
}
