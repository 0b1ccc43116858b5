package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/solace/internal/config"
)

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat [message...]",
	Short: "Talk to the companion",
	Long: `Talk to the companion.

With arguments, sends a single message and prints the reply. Without
arguments, starts an interactive session (Ctrl-D to leave).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		if len(args) > 0 {
			return sendChatMessage(cmd, client, strings.Join(args, " "))
		}

		fmt.Fprintln(os.Stderr, "solace is listening. Ctrl-D to leave.")
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Fprint(os.Stderr, colorize(colorBold, "you> "))
			if !scanner.Scan() {
				fmt.Fprintln(os.Stderr)
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if err := sendChatMessage(cmd, client, line); err != nil {
				printError("%v", err)
			}
		}
	},
}

func sendChatMessage(cmd *cobra.Command, client *apiClient, message string) error {
	resp, err := client.post(cmd.Context(), "/v1/chat", map[string]string{"message": message})
	if err != nil {
		return err
	}

	var reply struct {
		Reply struct {
			Content          string   `json:"content"`
			SuggestedReplies []string `json:"suggested_replies"`
		} `json:"reply"`
		Crisis    bool     `json:"crisis"`
		Resources []string `json:"resources"`
	}
	if err := decodeJSON(resp, &reply); err != nil {
		return err
	}

	fmt.Printf("%s %s\n", colorize(colorCyan, "solace>"), reply.Reply.Content)
	if reply.Crisis {
		for _, r := range reply.Resources {
			fmt.Printf("  %s\n", colorize(colorYellow, r))
		}
	}
	if len(reply.Reply.SuggestedReplies) > 0 {
		fmt.Printf("  %s %s\n", colorize(colorBold, "suggestions:"), strings.Join(reply.Reply.SuggestedReplies, " | "))
	}
	return nil
}

// --- journal ---

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Record and review journal entries",
}

var journalAddCmd = &cobra.Command{
	Use:   "add <content...>",
	Short: "Record a journal entry",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mood, _ := cmd.Flags().GetString("mood")
		tagsStr, _ := cmd.Flags().GetString("tags")

		var tags []string
		if tagsStr != "" {
			tags = strings.Split(tagsStr, ",")
			for i := range tags {
				tags[i] = strings.TrimSpace(tags[i])
			}
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/journal", map[string]any{
			"mood":    mood,
			"content": strings.Join(args, " "),
			"tags":    tags,
		})
		if err != nil {
			return err
		}

		var result map[string]any
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Recorded entry %v", result["id"])
		return nil
	},
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent journal entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), fmt.Sprintf("/v1/journal?limit=%d", limit))
		if err != nil {
			return err
		}

		var result struct {
			Entries []struct {
				ID        string   `json:"id"`
				Mood      string   `json:"mood"`
				Content   string   `json:"content"`
				Tags      []string `json:"tags"`
				CreatedAt string   `json:"created_at"`
			} `json:"entries"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		if len(result.Entries) == 0 {
			fmt.Println("No journal entries yet.")
			return nil
		}
		for _, e := range result.Entries {
			content := e.Content
			if len(content) > 80 {
				content = content[:80] + "..."
			}
			line := fmt.Sprintf("%s  %s  %s",
				colorize(colorCyan, e.CreatedAt),
				colorize(colorBold, e.Mood),
				content,
			)
			if len(e.Tags) > 0 {
				line += "  [" + strings.Join(e.Tags, ", ") + "]"
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	journalAddCmd.Flags().String("mood", "", "mood label (required)")
	journalAddCmd.MarkFlagRequired("mood")
	journalAddCmd.Flags().String("tags", "", "comma-separated tags")
	journalListCmd.Flags().Int("limit", 20, "maximum number of entries to list")
	journalCmd.AddCommand(journalAddCmd)
	journalCmd.AddCommand(journalListCmd)
}

// --- insights ---

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Show personalized insights",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/insights")
		if err != nil {
			return err
		}

		var result struct {
			Insights []struct {
				ID          string   `json:"id"`
				Type        string   `json:"type"`
				Title       string   `json:"title"`
				Content     string   `json:"content"`
				ActionItems []string `json:"action_items"`
				Priority    string   `json:"priority"`
			} `json:"insights"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		for _, in := range result.Insights {
			fmt.Printf("\n%s [%s, %s]\n", colorize(colorBold, in.Title), in.Type, in.Priority)
			fmt.Printf("  %s\n", in.Content)
			for _, item := range in.ActionItems {
				fmt.Printf("  - %s\n", item)
			}
			fmt.Printf("  %s\n", colorize(colorCyan, "id: "+in.ID))
		}
		return nil
	},
}

var insightsReadCmd = &cobra.Command{
	Use:   "read <id>",
	Short: "Mark an insight as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/insights/"+args[0]+"/read", nil)
		if err != nil {
			return err
		}
		var result map[string]string
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("Marked %s as read", args[0])
		return nil
	},
}

func init() {
	insightsCmd.AddCommand(insightsReadCmd)
}

// --- privacy ---

var privacyCmd = &cobra.Command{
	Use:   "privacy",
	Short: "Show or update privacy settings",
}

var privacyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current privacy settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/v1/privacy")
		if err != nil {
			return err
		}
		var settings any
		if err := decodeJSON(resp, &settings); err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(settings)
	},
}

var privacySetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Update a privacy setting",
	Long: `Update a privacy setting.

Keys: encrypt_conversations, allow_data_analysis, share_insights_with_partner,
delete_data_after_days, anonymize_data, export_data_allowed.
Pass "none" for delete_data_after_days to clear the window.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		body := map[string]any{}
		if key == "delete_data_after_days" {
			if value == "none" {
				body["clear_delete_after"] = true
			} else {
				days, err := strconv.Atoi(value)
				if err != nil {
					return fmt.Errorf("delete_data_after_days needs a number or \"none\"")
				}
				body[key] = days
			}
		} else {
			enabled, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("%s needs true or false", key)
			}
			body[key] = enabled
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.patch(cmd.Context(), "/v1/privacy", body)
		if err != nil {
			return err
		}
		var settings any
		if err := decodeJSON(resp, &settings); err != nil {
			return err
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	privacyCmd.AddCommand(privacyShowCmd)
	privacyCmd.AddCommand(privacySetCmd)
}

// --- retention ---

var retentionCmd = &cobra.Command{
	Use:   "retention",
	Short: "Show or update the retention policy",
}

var retentionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current retention policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/v1/retention")
		if err != nil {
			return err
		}
		var policy any
		if err := decodeJSON(resp, &policy); err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(policy)
	},
}

var retentionSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Update a retention window",
	Long: `Update a retention window.

Keys: conversation_days, journal_days, insight_days (number of days, or -1
to keep forever) and auto_delete_enabled (true/false).`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		body := map[string]any{}
		if key == "auto_delete_enabled" {
			enabled, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("auto_delete_enabled needs true or false")
			}
			body[key] = enabled
		} else {
			days, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("%s needs a number of days", key)
			}
			body[key] = days
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.patch(cmd.Context(), "/v1/retention", body)
		if err != nil {
			return err
		}
		var policy any
		if err := decodeJSON(resp, &policy); err != nil {
			return err
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	retentionCmd.AddCommand(retentionShowCmd)
	retentionCmd.AddCommand(retentionSetCmd)
}

// --- data ---

var dataCmd = &cobra.Command{
	Use:   "data",
	Short: "Export or erase stored data",
}

var dataExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all stored data as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/export")
		if err != nil {
			return err
		}
		var export any
		if err := decodeJSON(resp, &export); err != nil {
			return err
		}

		writer := os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			writer = f
		}

		enc := json.NewEncoder(writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(export); err != nil {
			return err
		}
		if output != "" {
			printSuccess("Data exported to %s", output)
		}
		return nil
	},
}

var dataPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all stored data",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete ALL stored data. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.delete(cmd.Context(), "/v1/account")
		if err != nil {
			return err
		}
		var result struct {
			Deleted []string `json:"deleted"`
		}
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("All data purged (%s)", strings.Join(result.Deleted, ", "))
		return nil
	},
}

func init() {
	dataExportCmd.Flags().String("output", "", "output file path (default: stdout)")
	dataPurgeCmd.Flags().Bool("confirm", false, "confirm data purge")
	dataCmd.AddCommand(dataExportCmd)
	dataCmd.AddCommand(dataPurgeCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
