package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/maestroflow/maestro/internal/agent"
	"github.com/maestroflow/maestro/internal/engine"
	"github.com/maestroflow/maestro/internal/model"
	"github.com/maestroflow/maestro/internal/monitor"
	"github.com/maestroflow/maestro/internal/service"
	"github.com/maestroflow/maestro/internal/storage"
)

func main() {
	// Initialize logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		logger.Fatal("Failed to read config file", zap.Error(err))
	}

	// Connect to NATS for lifecycle events and metrics
	opts := []nats.Option{
		nats.Name(viper.GetString("app.name")),
		nats.MaxReconnects(viper.GetInt("nats.max_reconnects")),
		nats.ReconnectWait(viper.GetDuration("nats.reconnect_wait")),
		nats.Timeout(viper.GetDuration("nats.connect_timeout")),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	var nc *nats.Conn
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(viper.GetString("nats.urls.0"), opts...)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
	}
	defer nc.Close()

	logger.Info("Connected to NATS", zap.String("url", nc.ConnectedUrl()))

	js, err := nc.JetStream()
	if err != nil {
		logger.Fatal("Failed to create JetStream context", zap.Error(err))
	}
	if err := service.EnsureStream(js); err != nil {
		logger.Fatal("Failed to create event stream", zap.Error(err))
	}

	// Agent registry with the built-in specialized profiles
	registry := agent.NewRegistry(agent.KeywordScorer{}, logger)
	for _, profile := range agent.DefaultProfiles() {
		registry.Register(profile)
	}

	// Workflow run history
	history, err := storage.NewSQLiteWorkflowHistory(logger, viper.GetString("storage.path"))
	if err != nil {
		logger.Fatal("Failed to create workflow history storage", zap.Error(err))
	}
	defer history.Close()

	// Lifecycle events go to NATS, best-effort
	events := service.NewEventPublisher(js, logger)

	eng := engine.NewEngine(engine.Config{
		MaxParallel:      viper.GetInt("engine.max_parallel"),
		DefaultAssignee:  viper.GetString("engine.default_assignee"),
		MaxRetries:       viper.GetInt("engine.max_retries"),
		Executor:         demoExecutor(logger),
		Registry:         registry,
		History:          history,
		OnTaskUpdate:     events.OnTaskUpdate,
		OnWorkflowUpdate: events.OnWorkflowUpdate,
	}, logger)

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	// Metrics collection
	collector := monitor.NewMetricsCollector(js, eng, viper.GetDuration("metrics.interval"), logger)
	if err := collector.Start(ctx); err != nil {
		logger.Fatal("Failed to start metrics collector", zap.Error(err))
	}
	defer collector.Stop()

	// Recurring workflow schedules
	cronRunner := engine.NewCronRunner(eng, logger)
	cronRunner.Start()
	defer cronRunner.Stop()

	if expr := viper.GetString("demo.schedule"); expr != "" {
		err := cronRunner.AddSchedule(&engine.WorkflowSchedule{
			Name:       "demo",
			Expression: expr,
			Objective:  viper.GetString("demo.objective"),
			Plan:       demoPlan(),
		})
		if err != nil {
			logger.Fatal("Failed to add demo schedule", zap.Error(err))
		}
	}

	if viper.GetBool("demo.enabled") {
		runDemo(ctx, eng, logger)
	}

	<-ctx.Done()
	logger.Info("Server shutting down gracefully")
}

// demoExecutor stands in for a real agent capability. It echoes the task
// with its dependency context, simulating work.
func demoExecutor(logger *zap.Logger) engine.ExecutorFunc {
	return func(ctx context.Context, agentName, task string, taskContext map[string]string) (string, error) {
		logger.Info("Executing task",
			zap.String("agent", agentName),
			zap.String("task", task),
			zap.Int("context_entries", len(taskContext)))

		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
			return "", ctx.Err()
		}

		return fmt.Sprintf("[%s] completed: %s", agentName, task), nil
	}
}

// demoPlan is the canned plan used by the demo workflow and schedule.
func demoPlan() []model.PlannedTask {
	return []model.PlannedTask{
		{Task: "Research landing page best practices", Assignee: "Research", Priority: 1},
		{Task: "Design the page layout and signup form", Assignee: "UI/UX Designer", Priority: 2, DependsOn: []model.DepRef{"task_1"}},
		{Task: "Implement the page and form validation code", Assignee: "Developer", Priority: 2, DependsOn: []model.DepRef{"task_2"}},
		{Task: "Review the implementation for security issues", Assignee: "Security", Priority: 3, DependsOn: []model.DepRef{"task_3"}},
		{Task: "Test the signup flow end to end", Assignee: "QA Tester", Priority: 3, DependsOn: []model.DepRef{"task_3"}},
	}
}

// runDemo builds and executes one workflow from the canned plan.
func runDemo(ctx context.Context, eng *engine.Engine, logger *zap.Logger) {
	objective := viper.GetString("demo.objective")

	wf := eng.CreateWorkflow("", "demo", objective)
	if _, err := eng.CreateTasksFromPlan(wf, demoPlan()); err != nil {
		logger.Error("Demo plan rejected", zap.Error(err))
		return
	}

	results, err := eng.Execute(ctx, wf)
	if err != nil {
		logger.Error("Demo workflow failed", zap.Error(err))
		return
	}

	logger.Info("Demo workflow finished",
		zap.String("workflow_id", wf.ID),
		zap.Int("results", len(results)))

	if snap, ok := eng.GetWorkflowStatus(wf.ID); ok {
		for _, task := range snap.Tasks {
			logger.Info("Task state",
				zap.String("task_id", task.ID),
				zap.String("assignee", task.Assignee),
				zap.String("status", string(task.Status)))
		}
	}
}
