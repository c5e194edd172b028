// Package tlsutil 提供集中式 TLS 与连接池配置，
// 为写入文档存储的 HTTP 传输层提供安全加固的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
