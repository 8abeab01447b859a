// Package notifier 发送桌面通知，尽力而为，不保证送达。
package notifier

import (
	"sync"

	"github.com/LJTian/NewsWatch/internal/logger"
	"github.com/gen2brain/beeep"
)

// Notifier 发送一条通知，不阻塞调用方
type Notifier interface {
	Notify(title, message string)
}

// Desktop 通过 beeep 弹出系统通知，每条通知在独立 goroutine 中发送
type Desktop struct {
	log  logger.Logger
	send func(title, message string) error
	wg   sync.WaitGroup
}

func NewDesktop(appName string, log logger.Logger) *Desktop {
	if appName != "" {
		beeep.AppName = appName
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Desktop{
		log: log,
		send: func(title, message string) error {
			return beeep.Notify(title, message, "")
		},
	}
}

func (d *Desktop) Notify(title, message string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.send(title, message); err != nil {
			d.log.Warn("desktop notification failed",
				logger.String("title", title),
				logger.Err(err),
			)
		}
	}()
}

// Wait 等待已发出的通知完成，退出前调用
func (d *Desktop) Wait() {
	d.wg.Wait()
}

// Nop 在关闭通知时使用
type Nop struct{}

func (Nop) Notify(string, string) {}
