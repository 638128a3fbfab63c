package event

import (
	"strings"

	"github.com/ceyewan/meshd/frame"
	"github.com/ceyewan/meshd/xerrors"
)

// Config 事件发布配置
type Config struct {
	Enabled bool `mapstructure:"enabled"`

	// SubjectPrefix 主题前缀，默认 "mesh.events"
	SubjectPrefix string `mapstructure:"subject_prefix"`

	// Encoding 消息编码：json | msgpack，默认 json
	Encoding string `mapstructure:"encoding"`
}

func (c *Config) setDefaults() {
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "mesh.events"
	}
	c.SubjectPrefix = strings.TrimSuffix(c.SubjectPrefix, ".")
	if c.Encoding == "" {
		c.Encoding = frame.CodecJSON
	}
}

func (c *Config) validate() error {
	switch c.Encoding {
	case frame.CodecJSON, frame.CodecMsgpack:
	default:
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "event: unknown encoding %q", c.Encoding)
	}
	if strings.ContainsAny(c.SubjectPrefix, " *>") {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "event: invalid subject prefix %q", c.SubjectPrefix)
	}
	return nil
}

// Subject 返回事件对应的主题
func (c *Config) Subject(kind Kind) string {
	return c.SubjectPrefix + "." + string(kind)
}
