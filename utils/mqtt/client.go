/*
 * Copyright 2024 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package mqtt wraps the Paho MQTT client for mqtt:// points.
//
// A Client keeps one handler per topic and subscribes them again after every
// reconnect. Connection changes are reported through Config callbacks so that
// points can switch between connected and disconnected.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/gofrs/uuid/v5"
)

// ErrNotConnected is returned when publishing without a broker connection.
var ErrNotConnected = errors.New("mqtt client is not connected")

const (
	defaultMaxReconnectInterval = 60 * time.Second
	defaultConnectTimeout       = 10 * time.Second
	subscribeAttempts           = 3
)

// Handler 订阅数据处理器
type Handler struct {
	//订阅主题
	Topic string
	//订阅Qos
	Qos byte
	//接收订阅数据 处理
	Handle func(topic string, payload []byte)
}

// Config 客户端配置
type Config struct {
	//mqtt broker 地址
	Server string
	//用户名
	Username string
	//密码
	Password string
	//重连重试间隔
	MaxReconnectInterval time.Duration
	// ConnectTimeout bounds one connection attempt
	ConnectTimeout time.Duration
	QOS            uint8
	CleanSession   bool
	//client Id, random if empty
	ClientID    string
	CAFile      string
	CertFile    string
	CertKeyFile string
	// OnConnected is called after every (re)connect, after resubscribing
	OnConnected func()
	// OnConnectionLost is called when the broker connection drops
	OnConnectionLost func(err error)
}

// Client mqtt客户端
type Client struct {
	sync.RWMutex
	client      paho.Client
	conf        Config
	isConnected int32
	//订阅主题和处理器映射
	msgHandlerMap map[string]Handler
}

// NewClientID returns a random client id
func NewClientID() string {
	uid, err := uuid.NewV4()
	if err != nil {
		return fmt.Sprintf("pvscript/%d", time.Now().UnixNano())
	}
	return "pvscript/" + uid.String()
}

// NewClient 创建一个MQTT客户端实例, retrying until ctx is done
func NewClient(ctx context.Context, conf Config) (*Client, error) {
	b := &Client{
		conf:          conf,
		msgHandlerMap: make(map[string]Handler),
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(conf.Server)
	opts.SetUsername(conf.Username)
	opts.SetPassword(conf.Password)
	opts.SetCleanSession(conf.CleanSession)
	if conf.ClientID == "" {
		opts.SetClientID(NewClientID())
	} else {
		opts.SetClientID(conf.ClientID)
	}
	opts.SetOnConnectHandler(b.onConnected)
	opts.SetConnectionLostHandler(b.onConnectionLost)
	if conf.MaxReconnectInterval <= 0 {
		conf.MaxReconnectInterval = defaultMaxReconnectInterval
	}
	opts.SetMaxReconnectInterval(conf.MaxReconnectInterval)
	if conf.ConnectTimeout <= 0 {
		conf.ConnectTimeout = defaultConnectTimeout
	}
	opts.SetConnectTimeout(conf.ConnectTimeout)

	tlsconfig, err := newTLSConfig(conf.CAFile, conf.CertFile, conf.CertKeyFile)
	if err != nil {
		return nil, fmt.Errorf("error loading mqtt certificate files,ca_cert=%s,tls_cert=%s,tls_key=%s: %w", conf.CAFile, conf.CertFile, conf.CertKeyFile, err)
	}
	if tlsconfig != nil {
		opts.SetTLSConfig(tlsconfig)
	}
	b.client = paho.NewClient(opts)

	for {
		token := b.client.Connect()
		token.Wait()
		if token.Error() == nil {
			break
		}
		select {
		case <-ctx.Done():
			//context被取消或超时，返回错误
			return nil, fmt.Errorf("connect %s: %w", conf.Server, token.Error())
		case <-time.After(2 * time.Second):
			//定时器到期，继续重试
		}
	}
	atomic.StoreInt32(&b.isConnected, 1)
	return b, nil
}

// IsConnected reports whether the broker connection is up
func (b *Client) IsConnected() bool {
	return atomic.LoadInt32(&b.isConnected) == 1
}

// RegisterHandler 注册订阅数据处理器
func (b *Client) RegisterHandler(handler Handler) error {
	b.Lock()
	b.msgHandlerMap[handler.Topic] = handler
	b.Unlock()
	return b.subscribeHandler(handler)
}

// UnregisterHandler 删除订阅数据处理器
func (b *Client) UnregisterHandler(topic string) error {
	b.Lock()
	defer b.Unlock()
	if _, exists := b.msgHandlerMap[topic]; !exists {
		return nil
	}
	delete(b.msgHandlerMap, topic)
	if !b.IsConnected() {
		return nil
	}
	if token := b.client.Unsubscribe(topic); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// GetHandlerByUpTopic 通过主题获取数据处理器
func (b *Client) GetHandlerByUpTopic(topic string) Handler {
	b.RLock()
	defer b.RUnlock()
	return b.msgHandlerMap[topic]
}

// Close unsubscribes every topic and disconnects
func (b *Client) Close() error {
	b.Lock()
	topics := make([]string, 0, len(b.msgHandlerMap))
	for topic := range b.msgHandlerMap {
		topics = append(topics, topic)
	}
	b.msgHandlerMap = make(map[string]Handler)
	b.Unlock()

	if b.IsConnected() && len(topics) > 0 {
		b.client.Unsubscribe(topics...).WaitTimeout(time.Second)
	}
	b.client.Disconnect(500)
	atomic.StoreInt32(&b.isConnected, 0)
	return nil
}

// Publish 发布数据
func (b *Client) Publish(topic string, qos byte, data []byte) error {
	if !b.IsConnected() {
		return ErrNotConnected
	}
	if token := b.client.Publish(topic, qos, false, data); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (b *Client) onConnected(c paho.Client) {
	atomic.StoreInt32(&b.isConnected, 1)
	b.subscribe()
	if b.conf.OnConnected != nil {
		b.conf.OnConnected()
	}
}

func (b *Client) subscribe() {
	b.RLock()
	// 创建处理器副本以避免在迭代过程中持有锁
	handlers := make([]Handler, 0, len(b.msgHandlerMap))
	for _, handler := range b.msgHandlerMap {
		handlers = append(handlers, handler)
	}
	b.RUnlock()

	for _, handler := range handlers {
		_ = b.subscribeHandler(handler)
	}
}

func (b *Client) subscribeHandler(handler Handler) error {
	if !b.IsConnected() {
		// subscribed by onConnected
		return nil
	}
	topic := handler.Topic
	callback := func(c paho.Client, m paho.Message) {
		handler.Handle(m.Topic(), m.Payload())
	}
	var err error
	for i := 0; i < subscribeAttempts; i++ {
		token := b.client.Subscribe(topic, handler.Qos, callback)
		token.Wait()
		err = token.Error()
		if err == nil {
			if st, ok := token.(*paho.SubscribeToken); ok && is128Err(st, topic) {
				err = fmt.Errorf("subscribe %s: rejected by broker", topic)
			}
		}
		if err == nil {
			return nil
		}
		time.Sleep(time.Duration(i+1) * 500 * time.Millisecond)
	}
	return err
}

// 判断是否是acl 128错误
func is128Err(token *paho.SubscribeToken, topic string) bool {
	result, ok := token.Result()[topic]
	return ok && result == 128
}

func (b *Client) onConnectionLost(c paho.Client, reason error) {
	atomic.StoreInt32(&b.isConnected, 0)
	if b.conf.OnConnectionLost != nil {
		b.conf.OnConnectionLost(reason)
	}
}

func newTLSConfig(CAFile, certFile, certKeyFile string) (*tls.Config, error) {
	if CAFile == "" && certFile == "" && certKeyFile == "" {
		return nil, nil
	}

	tlsConfig := &tls.Config{}

	// Import trusted certificates from CAFile.pem.
	if CAFile != "" {
		caCert, err := os.ReadFile(CAFile)
		if err != nil {
			return nil, err
		}
		certPool := x509.NewCertPool()
		certPool.AppendCertsFromPEM(caCert)

		tlsConfig.RootCAs = certPool // RootCAs = certs used to verify server cert.
	}

	// Import certificate and the key
	if certFile != "" && certKeyFile != "" {
		kp, err := tls.LoadX509KeyPair(certFile, certKeyFile)
		if err != nil {
			return nil, err
		}
		tlsConfig.Certificates = []tls.Certificate{kp}
	}
	return tlsConfig, nil
}
