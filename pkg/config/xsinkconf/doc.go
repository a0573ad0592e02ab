// Package xsinkconf 从 YAML/JSON 文档构造 Appender。
//
// 文档结构：
//
//	status:
//	  level: info
//	  format: text
//	  file: /var/log/app/xsink-status.log
//	appenders:
//	  - name: app
//	    type: rolling
//	    rolling:
//	      file_name: logs/app.log
//	      file_pattern: logs/app-%d{2006-01-02}-%i.log.gz
//	      policy: {size: 10 MB, interval: 24h, modulate: true}
//	      strategy: {max: 7}
//	  - name: ship
//	    type: queue
//	    queue:
//	      batch_size: 100
//	      agents:
//	        - {type: redis, address: 127.0.0.1:6379, target: logs}
//
// Load/Parse 只做解析与校验；Build 按文档获取 Manager 并创建 Appender。
// Watch 监视配置文件，变更后由 Runtime.Apply 整体替换 Appender 集合。
//
// 替换时新集合先于旧集合释放 Manager，因此键相同的 Manager 会被沿用，
// 新文档中对其构造参数的修改不会生效（状态日志会给出警告）。
package xsinkconf
