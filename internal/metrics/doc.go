// 版权所有 2024 AgentBus Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的全链路指标采集能力，覆盖
HTTP、工作流状态、订阅扇出与存储四大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram、Gauge 等
    Prometheus 向量指标，按业务域分组管理。

# 主要能力

  - HTTP 指标：请求总数、请求耗时、请求/响应体大小，
    按 method/path/status 分组，状态码归类为 2xx/3xx/4xx/5xx。
  - 工作流状态指标：步骤转换计数、活跃工作流 Gauge、暂停/恢复/
    超时升级计数、被拒绝的非法变更计数、启动恢复计数，
    按 workflow_type 分组。
  - 订阅扇出指标：活跃订阅者 Gauge、快照投递与丢弃计数，
    按 workflow_type 分组。
  - 存储指标：状态存储操作耗时 Histogram 与失败计数，
    按 operation（save/load/list）分组。
*/
package metrics
