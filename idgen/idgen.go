// Package idgen 生成请求 ID，支持 Snowflake 与 Sonyflake 两种算法.
package idgen

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/sony/sonyflake"

	"github.com/wyfcoding/optionpricer/config"
)

var (
	ErrUnsupportedType  = errors.New("unsupported id generator type")
	ErrParseTime        = errors.New("failed to parse start time")
	ErrInvalidMachineID = errors.New("machine_id must be between 0 and 65535")
)

// Generator 生成单调递增的唯一 ID.
type Generator interface {
	Generate() int64
}

// New 按 cfg.Type 创建生成器，空类型视为 snowflake.
func New(cfg config.IDGenConfig) (Generator, error) {
	switch cfg.Type {
	case "", "snowflake":
		return NewSnowflakeGenerator(cfg)
	case "sonyflake":
		return NewSonyflakeGenerator(cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, cfg.Type)
	}
}

// String 以十进制字符串返回下一个 ID.
func String(g Generator) string {
	return strconv.FormatInt(g.Generate(), 10)
}

func startTime(s string) (time.Time, error) {
	if s == "" {
		return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), nil
	}
	st, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %w", ErrParseTime, err)
	}
	return st, nil
}

// SnowflakeGenerator 每毫秒 4096 个 ID，节点号 0-1023.
type SnowflakeGenerator struct {
	node *snowflake.Node
}

// NewSnowflakeGenerator 注意 snowflake.Epoch 是包级变量，进程内只应设置一次.
func NewSnowflakeGenerator(cfg config.IDGenConfig) (*SnowflakeGenerator, error) {
	st, err := startTime(cfg.StartTime)
	if err != nil {
		return nil, err
	}
	snowflake.Epoch = st.UnixMilli()

	node, err := snowflake.NewNode(cfg.MachineID)
	if err != nil {
		return nil, fmt.Errorf("create snowflake node: %w", err)
	}
	slog.Debug("snowflake generator initialized", "machine_id", cfg.MachineID, "epoch", snowflake.Epoch)
	return &SnowflakeGenerator{node: node}, nil
}

func (g *SnowflakeGenerator) Generate() int64 {
	return g.node.Generate().Int64()
}

// SonyflakeGenerator 每 10 毫秒 256 个 ID，机器号 0-65535.
type SonyflakeGenerator struct {
	sf *sonyflake.Sonyflake
}

func NewSonyflakeGenerator(cfg config.IDGenConfig) (*SonyflakeGenerator, error) {
	st, err := startTime(cfg.StartTime)
	if err != nil {
		return nil, err
	}
	if cfg.MachineID < 0 || cfg.MachineID > 65535 {
		return nil, ErrInvalidMachineID
	}
	machineID := uint16(cfg.MachineID & 0xFFFF)

	sf, err := sonyflake.New(sonyflake.Settings{
		StartTime: st,
		MachineID: func() (uint16, error) { return machineID, nil },
	})
	if err != nil {
		return nil, fmt.Errorf("create sonyflake: %w", err)
	}
	slog.Debug("sonyflake generator initialized", "machine_id", cfg.MachineID, "start_time", st)
	return &SonyflakeGenerator{sf: sf}, nil
}

// Generate 时钟回拨等错误时短暂等待后重试，仍失败则退回时间戳.
func (g *SonyflakeGenerator) Generate() int64 {
	const maxRetries = 3
	for range maxRetries {
		id, err := g.sf.NextID()
		if err == nil {
			return int64(id & (1<<63 - 1))
		}
		slog.Warn("sonyflake next id failed, retrying", "error", err)
		time.Sleep(10 * time.Millisecond)
	}
	return time.Now().UnixNano()
}
