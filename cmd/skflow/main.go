// Command skflow は TOML 設定に従って評価ワークフローを 1 回実行し、結果をログに出力します。
//
//	SKFLOW_CONFIG=skflow.toml skflow
//
// 設定ファイルのパスは第 1 引数でも指定できます。
package main

import (
	"fmt"
	"os"

	"github.com/YuminosukeSato/skflow/internal/config"
	"github.com/YuminosukeSato/skflow/pkg/log"
	"github.com/YuminosukeSato/skflow/workflow"
)

const defaultConfigPath = "skflow.toml"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "skflow: %+v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	path := os.Getenv("SKFLOW_CONFIG")
	if len(args) > 0 {
		path = args[0]
	}
	if path == "" {
		path = defaultConfigPath
	}

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	logger, err := log.SetupZerolog(os.Stderr, cfg.LogLevel)
	if err != nil {
		return err
	}

	report, err := workflow.Run(cfg, workflow.WithLogger(logger))
	if err != nil {
		logger.Error("run failed", err, log.SourceKey, path)
		return err
	}

	logger.Info("report",
		log.RunIDKey, report.RunID,
		log.ModelNameKey, report.Model,
		log.SourceKey, report.Source,
		log.MetricKey, report.Scoring,
		log.ScoreKey, report.TestScore,
		log.MeanKey, report.CVMean,
		log.StdKey, report.CVStd,
		log.HyperParamsKey, report.BestParams,
		log.DurationMsKey, report.Duration.Milliseconds(),
	)
	return nil
}
