package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"courseplatform_echo/internal/config"
	"courseplatform_echo/internal/models"
	"courseplatform_echo/internal/services"
	"courseplatform_echo/internal/tasks"
)

func main() {
	// defined flags
	seed := flag.Bool("seed", false, "Schedule the default daily jobs and exit")
	taskName := flag.String("task_name", "", "Name of the task (mandatory)")
	argsStr := flag.String("arguments", "{}", "JSON arguments for the task")
	dueStr := flag.String("due", "", "Due date (mandatory, format: 2006-01-02 15:04 in UTC, or RFC3339)")
	taskType := flag.String("tasktype", "onetime", "Task type (optional, default: onetime)")
	recurring := flag.String("recurring", "", "RRULE for recurring tasks (optional)")
	maxAttempt := flag.Int("max_attempt", 3, "Max attempts (optional, default: 3)")

	flag.Parse()

	if !*seed && (*taskName == "" || *dueStr == "") {
		fmt.Println("Usage: schedule_task -seed")
		fmt.Println("       schedule_task -task_name <name> -due <YYYY-MM-DD HH:MM> [-arguments <json>] [options]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	cfg.ConfigureLogging()

	db, err := services.InitDB(cfg.DatabaseURL, false)
	if err != nil {
		logrus.Fatalf("Failed to connect DB: %v", err)
	}

	if *seed {
		created, err := tasks.SeedDefaults(context.Background(), db, time.Now())
		if err != nil {
			logrus.Fatalf("Failed to seed daily jobs: %v", err)
		}
		for _, task := range created {
			fmt.Printf("Scheduled %s (ID: %d) first due %s\n", task.TaskName, task.ID, task.Due.Format(time.RFC3339))
		}
		fmt.Printf("Created %d tasks\n", len(created))
		return
	}

	// handlers are only registered to know the task names; the worker runs them
	tasks.DefineTasks(tasks.GlobalRegistry, tasks.Deps{})
	if _, ok := tasks.GetHandler(*taskName); !ok {
		logrus.Fatalf("Unknown task %q, available: %s", *taskName, strings.Join(tasks.GlobalRegistry.Names(), ", "))
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(*argsStr), &args); err != nil {
		logrus.Fatalf("Invalid JSON arguments: %v", err)
	}

	due, err := time.Parse(time.RFC3339, *dueStr)
	if err != nil {
		due, err = time.ParseInLocation("2006-01-02 15:04", *dueStr, time.UTC)
		if err != nil {
			logrus.Fatalf("Invalid due date format. Use '2006-01-02 15:04' (UTC) or RFC3339: %v", err)
		}
	}

	var recurringPtr *string
	if *recurring != "" {
		recurringPtr = recurring
	}

	task, err := tasks.BuildScheduledTask(*taskName, args, due, recurringPtr, models.ScheduledTaskType(*taskType), *maxAttempt)
	if err != nil {
		logrus.Fatalf("Invalid task: %v", err)
	}
	if err := db.Create(task).Error; err != nil {
		logrus.Fatalf("Failed to create task: %v", err)
	}

	fmt.Printf("Successfully created task ID: %d\n", task.ID)
	fmt.Printf("Task: %s\nDue: %s\nType: %s\n", task.TaskName, task.Due.Format(time.RFC3339), task.TaskType)
}
