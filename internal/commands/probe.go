package commands

import (
	"encoding/json"
	"fmt"

	"text2image-service/internal/config"
	"text2image-service/internal/generation"

	"github.com/spf13/cobra"
)

var (
	probeSize  string
	probeModel string
	probeCount int
)

var probeCmd = &cobra.Command{
	Use:   "probe [prompt]",
	Short: "发送一次测试生图请求并打印结果",
	Long: `发送一次测试生图请求，检查 API Key 与上游连通性。结果不会写入图库。

Examples:
  text2image probe
  text2image probe "一只橘猫" --size 1024*1024`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().StringVar(&probeSize, "size", generation.DefaultSize, "图片尺寸")
	probeCmd.Flags().StringVar(&probeModel, "model", generation.DefaultModel, "模型")
	probeCmd.Flags().IntVarP(&probeCount, "count", "n", 1, "生成数量")
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := requireAPIKey(cmd.ErrOrStderr(), cfg); err != nil {
		return err
	}

	prompt := "一只可爱的小猫"
	if len(args) == 1 {
		prompt = args[0]
	}

	client := newUpstreamClient(cfg)
	pipeline := generation.NewPipeline(client, client.GenerationPath(), nil)
	req := generation.Request{Prompt: prompt, Size: probeSize, Model: probeModel, Count: probeCount}.WithDefaults()
	outcome := pipeline.Generate(cmd.Context(), req)

	data, err := json.MarshalIndent(outcome, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))

	if outcome.Status != generation.StatusSuccess {
		return fmt.Errorf("测试调用失败: %s", outcome.Error)
	}
	return nil
}
