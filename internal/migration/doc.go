// 版权所有 2024 AgentBus Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理 state_records 表的数据库 Schema 迁移，支持 PostgreSQL、
MySQL 与 SQLite 三种方言，基于 golang-migrate 实现。

# 概述

本包通过 embed.FS 内嵌各方言的 SQL 迁移文件，结合 golang-migrate 引擎
实现版本化的 Schema 变更。状态总线 SQL 存储（persistence.GormStateStore）
读写的 state_records 表结构由本包唯一定义；生产环境通过 agentbus migrate
子命令执行迁移，开发环境可使用存储配置中的 AutoMigrate。

# 核心接口与类型

  - Migrator：迁移器接口，定义 Up/Down/DownAll/Steps/Goto/Force/
    Version/Status/Info/Close 操作集。
  - DefaultMigrator：Migrator 的默认实现，封装 golang-migrate 实例
    与数据库连接管理。
  - Config：迁移配置，包含方言、连接 URL、迁移表名与锁超时。
  - MigrationStatus / MigrationInfo：迁移状态与摘要信息。
  - CLI：命令行交互层，封装 Migrator 提供格式化输出。

# 工厂函数

NewMigratorFromStoreConfig 从 SQL 存储配置创建迁移器（复用存储 DSN），
NewMigratorFromURL 从显式方言与连接串创建。
*/
package migration
