// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/bdm-project/scentcf/base/log"
	"github.com/bdm-project/scentcf/cmd/version"
	"github.com/bdm-project/scentcf/config"
	"github.com/bdm-project/scentcf/etl"
	"github.com/bdm-project/scentcf/master"
	"github.com/bdm-project/scentcf/model/itemcf"
	"github.com/bdm-project/scentcf/server"
	"github.com/bdm-project/scentcf/storage/blob"
	"github.com/bdm-project/scentcf/storage/warehouse"
	"github.com/juju/errors"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCommand = &cobra.Command{
	Use:   "scentcf",
	Short: "Shopping data pipeline and item-based perfume recommender.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
	},
	SilenceUsage: true,
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Show build information.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(version.BuildInfo())
	},
}

var etlCommand = &cobra.Command{
	Use:   "etl",
	Short: "Load customer shopping data from CSV and clean it.",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if csvPath, _ := cmd.Flags().GetString("csv"); csvPath != "" {
			conf.ETL.CSVPath = csvPath
		}
		database, err := openWarehouse(conf)
		if err != nil {
			return err
		}
		defer closeWarehouse(database)
		pipeline := etl.NewPipeline(database, conf.ETL, conf.Blob)
		pipeline.ShowProgress, _ = cmd.Flags().GetBool("progress")
		return pipeline.Run(cmd.Context())
	},
}

var loadReviewsCommand = &cobra.Command{
	Use:   "load-reviews",
	Short: "Load perfume reviews from CSV with columns user_id, item_id and review.",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		csvPath, _ := cmd.Flags().GetString("csv")
		database, err := openWarehouse(conf)
		if err != nil {
			return err
		}
		defer closeWarehouse(database)
		pipeline := etl.NewPipeline(database, conf.ETL, conf.Blob)
		count, err := pipeline.LoadReviews(cmd.Context(), csvPath)
		if err != nil {
			return errors.Trace(err)
		}
		log.Logger().Info("loaded reviews", zap.Int("rows", count))
		return nil
	},
}

var trainCommand = &cobra.Command{
	Use:   "train",
	Short: "Fit the recommender and write a model snapshot.",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if source, _ := cmd.Flags().GetString("source"); source != "" {
			conf.Model.Source = source
		}
		database, err := openWarehouse(conf)
		if err != nil {
			return err
		}
		defer closeWarehouse(database)
		if err = database.Init(); err != nil {
			return errors.Trace(err)
		}
		store, err := blob.Open(conf.Blob.URI, conf.Blob)
		if err != nil {
			return errors.Trace(err)
		}
		trainer := master.NewTrainer(database, store, itemcf.NewHolder(), conf.Model)
		_, err = trainer.Fit(cmd.Context())
		return errors.Trace(err)
	},
}

var serveCommand = &cobra.Command{
	Use:   "serve",
	Short: "Serve recommendations over HTTP.",
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := blob.Open(conf.Blob.URI, conf.Blob)
		if err != nil {
			return errors.Trace(err)
		}
		holder := itemcf.NewHolder()
		ctx := cmd.Context()

		// retrain in process
		if conf.Model.FitPeriod > 0 {
			database, err := openWarehouse(conf)
			if err != nil {
				return err
			}
			defer closeWarehouse(database)
			if err = database.Init(); err != nil {
				return errors.Trace(err)
			}
			trainer := master.NewTrainer(database, store, holder, conf.Model)
			stop := startTrainer(ctx, trainer)
			defer stop()
		}

		s := server.NewServer(conf, store, holder)
		if err = s.Serve(ctx); err != nil {
			return errors.Trace(err)
		}
		log.Logger().Info("stop server successfully")
		return nil
	},
}

var recommendCommand = &cobra.Command{
	Use:   "recommend <actor-id>",
	Short: "Print recommendations for an actor from the latest snapshot.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("number")
		model, err := loadModel(cmd)
		if err != nil {
			return err
		}
		scores, err := model.ScoredRecommend(args[0], n)
		if err != nil {
			return errors.Trace(err)
		}
		return printScores(scores)
	},
}

var neighborsCommand = &cobra.Command{
	Use:   "neighbors <item-id>",
	Short: "Print the most similar items of an item from the latest snapshot.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("number")
		model, err := loadModel(cmd)
		if err != nil {
			return err
		}
		scores, err := model.ItemNeighbors(args[0], n)
		if err != nil {
			return errors.Trace(err)
		}
		return printScores(scores)
	},
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	log.Logger().Info("load config", zap.String("config", configPath))
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, errors.Annotate(err, "failed to load config")
	}
	return conf, nil
}

// startTrainer runs the refit loop in the background. The returned function stops the
// loop and waits until a running fit returns.
func startTrainer(ctx context.Context, trainer *master.Trainer) func() {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Go(func() {
		trainer.RunTasksLoop(ctx)
	})
	return func() {
		cancel()
		wg.Wait()
	}
}

func openWarehouse(conf *config.Config) (warehouse.Database, error) {
	database, err := warehouse.Open(conf.Database.Warehouse, conf.Database.TablePrefix)
	if err != nil {
		return nil, errors.Annotatef(err, "failed to connect warehouse %s", log.RedactDBURL(conf.Database.Warehouse))
	}
	return database, nil
}

func closeWarehouse(database warehouse.Database) {
	if err := database.Close(); err != nil {
		log.Logger().Error("failed to close warehouse", zap.Error(err))
	}
}

func loadModel(cmd *cobra.Command) (*itemcf.Model, error) {
	conf, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	store, err := blob.Open(conf.Blob.URI, conf.Blob)
	if err != nil {
		return nil, errors.Trace(err)
	}
	model, _, err := master.LoadSnapshot(store, conf.Model.SnapshotName)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return model, nil
}

func printScores(scores []itemcf.Score) error {
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Rank", "Item", "Score")
	for i, score := range scores {
		if err := table.Append([]string{strconv.Itoa(i + 1), score.Id, strconv.FormatFloat(score.Score, 'f', 4, 64)}); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(table.Render())
}

func init() {
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")

	etlCommand.Flags().String("csv", "", "CSV file overriding etl.csv_path")
	etlCommand.Flags().Bool("progress", true, "show a progress bar while loading CSV")
	loadReviewsCommand.Flags().String("csv", "", "CSV file of reviews")
	_ = loadReviewsCommand.MarkFlagRequired("csv")
	trainCommand.Flags().String("source", "", "interaction source overriding model.source")
	recommendCommand.Flags().IntP("number", "n", 5, "number of recommended items")
	neighborsCommand.Flags().IntP("number", "n", 5, "number of neighbors")

	rootCommand.AddCommand(versionCommand, etlCommand, loadReviewsCommand, trainCommand,
		serveCommand, recommendCommand, neighborsCommand)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCommand.ExecuteContext(ctx); err != nil {
		log.Logger().Error("failed to execute", zap.Error(err))
		stop()
		os.Exit(1)
	}
}
