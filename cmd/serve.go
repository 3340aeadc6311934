package cmd

import (
	"net/http"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/opsdesk/opsdesk/internal/api"
	"github.com/opsdesk/opsdesk/internal/llm"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start the HTTP API server for issues, triage reports, bulk import,
and ID maintenance. By default it listens on :8484. Use --addr to change it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		var llmClient *llm.Client
		if key := viper.GetString("anthropic.api_key"); key != "" {
			llmClient = llm.NewClient(key, viper.GetString("anthropic.model"))
		}

		srv := api.NewServer(s, llmClient)
		addr := viper.GetString("serve.addr")
		ui.Info("Serving API at http://localhost%s/api/v1", addr)
		return http.ListenAndServe(addr, srv.Router())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8484", "address to listen on")
	_ = viper.BindPFlag("serve.addr", serveCmd.Flags().Lookup("addr"))
}
