package cmd

import (
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	configVersionKey     = "version"
	currentConfigVersion = 1

	configBaseName   = "schemata"
	configFileName   = configBaseName + ".yaml"
	configFolderPath = "."

	excludeFlagName         = "exclude"
	formatFlagName          = "format"
	levelFlagName           = "level"
	operatorsFlagName       = "operators"
	tagsFlagName            = "tags"
	verboseFlagName         = "verbose"
	logFileFlagName         = "log-file"
	baselineTimeoutFlagName = "baseline-timeout"
	runParallelFlagName     = "parallel"
	mutationTimeoutFlagName = "mutation-timeout"
	timeoutFactorFlagName   = "timeout-factor"
	timeoutGraceFlagName    = "timeout-grace"
	testRunFlagName         = "run"
	rollbackFlagName        = "rollback"
	keepWorkspaceFlagName   = "keep-workspace"
	showOutputFlagName      = "show-output"
	metricsFileFlagName     = "metrics-textfile"
	spillDirFlagName        = "spill-dir"

	levelConfigKey           = "run.level"
	operatorsConfigKey       = "run.operators"
	runParallelConfigKey     = "run.parallel"
	mutationTimeoutKey       = "run.mutation_timeout"
	baselineTimeoutKey       = "run.baseline_timeout"
	timeoutFactorKey         = "run.timeout_factor"
	timeoutGraceKey          = "run.timeout_grace"
	testRunConfigKey         = "run.test_run"
	buildTagsConfigKey       = "build.tags"
	rollbackConfigKey        = "build.rollback"
	keepWorkspaceConfigKey   = "build.keep_workspace"
	formatConfigKey          = "report.format"
	showOutputConfigKey      = "report.show_output"
	metricsTextfileConfigKey = "metrics.textfile"
	spillDirConfigKey        = "spill.dir"
	excludeConfigKey         = "paths.exclude"

	defaultLevel           = "standard"
	defaultRunParallel     = 1
	defaultTimeoutFactor   = 2.0
	defaultTimeoutGrace    = 5 * time.Second
	defaultBaselineTimeout = 10 * time.Minute
	defaultFormat          = "text"

	envPrefix = "SCHEMATA"

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logVerboseKey    = "log.verbose"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogFilename   = ".schemata.log"
	defaultLogLevel      = "info"
	defaultLogVerbose    = false
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

var globalLogger *slog.Logger

// configErr holds a config file that exists but could not be read.
var configErr error

func init() {
	viper.SetConfigName(configBaseName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configFolderPath)
	viper.SetConfigFile(filepath.Join(configFolderPath, configFileName))
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			return
		}

		configErr = err
	}
}

func setDefaults() {
	viper.SetDefault(configVersionKey, currentConfigVersion)

	viper.SetDefault(levelConfigKey, defaultLevel)
	viper.SetDefault(operatorsConfigKey, []string{})
	viper.SetDefault(runParallelConfigKey, defaultRunParallel)
	viper.SetDefault(mutationTimeoutKey, time.Duration(0))
	viper.SetDefault(baselineTimeoutKey, defaultBaselineTimeout)
	viper.SetDefault(timeoutFactorKey, defaultTimeoutFactor)
	viper.SetDefault(timeoutGraceKey, defaultTimeoutGrace)
	viper.SetDefault(testRunConfigKey, "")
	viper.SetDefault(buildTagsConfigKey, []string{})
	viper.SetDefault(rollbackConfigKey, false)
	viper.SetDefault(keepWorkspaceConfigKey, false)
	viper.SetDefault(formatConfigKey, defaultFormat)
	viper.SetDefault(showOutputConfigKey, false)
	viper.SetDefault(metricsTextfileConfigKey, "")
	viper.SetDefault(spillDirConfigKey, "")
	viper.SetDefault(excludeConfigKey, []string{})

	viper.SetDefault(logFilenameKey, defaultLogFilename)
	viper.SetDefault(logLevelKey, defaultLogLevel)
	viper.SetDefault(logVerboseKey, defaultLogVerbose)
	viper.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	viper.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	viper.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	viper.SetDefault(logCompressKey, defaultLogCompress)
}

func parseSlogLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	// Numeric slog levels, e.g. -4 for debug.
	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}

	return defaultLevel
}

// configureLogger sets the default slog logger to a rotating log file.
//
// It logs at the configured level; verbose forces Debug.
func configureLogger(logPath string, verbose bool) {
	if strings.TrimSpace(logPath) == "" {
		logPath = viper.GetString(logFilenameKey)
	}

	if strings.TrimSpace(logPath) == "" {
		logPath = defaultLogFilename
	}

	var logLevel slog.Level
	if verbose {
		logLevel = slog.LevelDebug
	} else {
		logLevel = parseSlogLevel(viper.GetString(logLevelKey), slog.LevelInfo)
	}

	logWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    viper.GetInt(logMaxSizeKey),
		MaxBackups: viper.GetInt(logMaxBackupsKey),
		MaxAge:     viper.GetInt(logMaxAgeKey),
		Compress:   viper.GetBool(logCompressKey),
	}

	handler := slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
	})

	globalLogger = slog.New(handler)
	slog.SetDefault(globalLogger)
}
